// Package session holds the per-conversation document context of the file
// chat agent: retrieval chunks, file metadata and chat memory.
package session

import (
	"context"
	"time"
)

// DefaultMemoryTokenLimit bounds the chat memory replayed to the model.
const DefaultMemoryTokenLimit = 3000

// Chunk is one retrievable slice of a document with its embedding.
type Chunk struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Message is one chat memory entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is everything remembered about one session.
type Context struct {
	SessionID     string    `json:"session_id"`
	FileName      string    `json:"file_name"`
	Extension     string    `json:"file_extension"`
	ParsedWith    string    `json:"parsed_with"`
	Preview       string    `json:"content_preview"`
	ContentLength int       `json:"content_length"`
	Chunks        []Chunk   `json:"chunks"`
	Memory        []Message `json:"memory"`
	TokenLimit    int       `json:"memory_token_limit"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is a bounded, concurrency-safe session context table.
type Store interface {
	// Get returns the context for id; ok is false when absent or expired.
	Get(ctx context.Context, id string) (sc *Context, ok bool, err error)
	Put(ctx context.Context, sc *Context) error
	// Update applies fn to the stored context for id as one atomic
	// read-modify-write. found is false, and fn is not called, when the
	// context is absent or expired.
	Update(ctx context.Context, id string, fn func(sc *Context)) (found bool, err error)
	Delete(ctx context.Context, id string) error
}

// EstimateTokens approximates a token count as one token per four bytes.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Remember appends a turn and drops the oldest turns until the memory fits
// the token limit. The newest turn is always kept.
func (c *Context) Remember(role, content string) {
	c.Memory = append(c.Memory, Message{Role: role, Content: content})

	limit := c.TokenLimit
	if limit <= 0 {
		limit = DefaultMemoryTokenLimit
	}
	total := 0
	for _, m := range c.Memory {
		total += EstimateTokens(m.Content)
	}
	for len(c.Memory) > 1 && total > limit {
		total -= EstimateTokens(c.Memory[0].Content)
		c.Memory = c.Memory[1:]
	}
}

// clone copies the mutable parts; chunks are shared and never mutated.
func (c *Context) clone() *Context {
	cp := *c
	cp.Memory = append([]Message(nil), c.Memory...)
	return &cp
}
