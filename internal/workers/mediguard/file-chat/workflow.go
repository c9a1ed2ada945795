package filechat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"mediguard-agents/internal/common/llm"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/session"
)

const systemPrompt = "You are an AI assistant that helps users understand and analyze documents. " +
	"Use the document content to provide accurate and helpful responses. " +
	"If the question cannot be answered from the document, say so clearly. " +
	"Always cite specific parts of the document when possible."

const (
	noContextResponse = "I don't have any document context. Please upload a file first so I can answer questions about it."
	previewChars      = 200
	snippetChars      = 200
)

// ChatModel is satisfied by *llm.Client.
type ChatModel interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Embedder is satisfied by *llm.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// WorkflowInput starts one parse/chat run.
type WorkflowInput struct {
	Message     string
	SessionID   string
	FileContent []byte
	FileName    string
}

// WorkflowResult is what the chat step produced.
type WorkflowResult struct {
	Response   string
	HasContext bool
	FileName   string
	Citations  []Citation
}

// chatEvent is handed from the parse step to the chat step. A final event
// carries a response that is returned without calling the model.
type chatEvent struct {
	message   string
	sessionID string
	final     bool
	ctx       *session.Context
}

// Workflow runs parse then chat for one message.
type Workflow struct {
	config   *Config
	parser   *DocumentParser
	embedder Embedder
	chat     ChatModel
	store    session.Store
	logger   logger.Logger
}

func NewWorkflow(config *Config, parser *DocumentParser, embedder Embedder, chat ChatModel, store session.Store, log logger.Logger) *Workflow {
	return &Workflow{
		config:   config,
		parser:   parser,
		embedder: embedder,
		chat:     chat,
		store:    store,
		logger:   log,
	}
}

// Run executes the workflow under the workflow timeout. Only session store
// failures are returned as errors; everything else ends up in the response.
func (w *Workflow) Run(ctx context.Context, in WorkflowInput) (*WorkflowResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.config.WorkflowTimeout)
	defer cancel()

	var ev chatEvent
	if len(in.FileContent) > 0 && in.FileName != "" {
		w.logger.Info("starting workflow with file parsing", map[string]interface{}{
			"sessionId": in.SessionID,
			"fileName":  in.FileName,
		})
		var err error
		if ev, err = w.parse(ctx, in); err != nil {
			return nil, err
		}
	} else {
		ev = chatEvent{message: in.Message, sessionID: in.SessionID}
	}
	return w.respond(ctx, ev)
}

func (w *Workflow) parse(ctx context.Context, in WorkflowInput) (chatEvent, error) {
	ext := strings.ToLower(filepath.Ext(in.FileName))
	extLabel := ext
	if extLabel == "" {
		extLabel = "unknown type"
	}

	content, parsedWith := w.parser.Extract(ctx, in.FileName, in.FileContent)
	if strings.TrimSpace(content) == "" {
		w.logger.Warn("no readable content extracted", map[string]interface{}{"fileName": in.FileName})
		return chatEvent{
			message: fmt.Sprintf("I wasn't able to extract readable content from '%s'. "+
				"This might be due to the file format, file being empty, or parsing issues. "+
				"The file appears to be %s. "+
				"Please try uploading a different file or ensure it contains readable text.", in.FileName, extLabel),
			sessionID: in.SessionID,
			final:     true,
		}, nil
	}

	chunks := SplitText(content, w.config.ChunkSize, w.config.ChunkOverlap)
	vectors, err := w.embedder.Embed(ctx, chunks)
	if err != nil {
		w.logger.Error("document indexing failed", map[string]interface{}{
			"fileName": in.FileName,
			"error":    err.Error(),
		})
		return chatEvent{
			message: fmt.Sprintf("Sorry, I encountered an error while parsing your file '%s': %v. "+
				"Please try uploading a different file.", in.FileName, err),
			sessionID: in.SessionID,
			final:     true,
		}, nil
	}

	sc := &session.Context{
		SessionID:     in.SessionID,
		FileName:      in.FileName,
		Extension:     ext,
		ParsedWith:    parsedWith,
		Preview:       truncate(content, previewChars),
		ContentLength: utf8.RuneCountInString(content),
		Chunks:        make([]session.Chunk, len(chunks)),
		TokenLimit:    w.config.MemoryTokenLimit,
	}
	for i := range chunks {
		sc.Chunks[i] = session.Chunk{Text: chunks[i], Embedding: vectors[i]}
	}
	if err := w.store.Put(ctx, sc); err != nil {
		return chatEvent{}, err
	}

	w.logger.Info("document indexed", map[string]interface{}{
		"sessionId":  in.SessionID,
		"fileName":   in.FileName,
		"chunks":     len(chunks),
		"parsedWith": parsedWith,
	})

	message := in.Message
	if strings.TrimSpace(message) == "" {
		method := "text extraction"
		if parsedWith == ParsedWithCloud {
			method = "LlamaParse"
		}
		message = fmt.Sprintf("I've successfully parsed your file '%s' (%s) using %s. "+
			"The document contains %d characters of content. "+
			"You can now ask me questions about its content.", in.FileName, extLabel, method, sc.ContentLength)
	}
	return chatEvent{message: message, sessionID: in.SessionID, ctx: sc}, nil
}

func (w *Workflow) respond(ctx context.Context, ev chatEvent) (*WorkflowResult, error) {
	if ev.final {
		return &WorkflowResult{Response: ev.message, Citations: []Citation{}}, nil
	}

	sc := ev.ctx
	if sc == nil && ev.sessionID != "" {
		stored, ok, err := w.store.Get(ctx, ev.sessionID)
		if err != nil {
			return nil, err
		}
		if ok {
			sc = stored
		}
	}
	if sc == nil || len(sc.Chunks) == 0 {
		w.logger.Warn("no document context for session", map[string]interface{}{"sessionId": ev.sessionID})
		return &WorkflowResult{Response: noContextResponse, Citations: []Citation{}}, nil
	}

	answer, sources, err := w.chatWithContext(ctx, sc, ev.message)
	if err != nil {
		w.logger.Error("chat failed", map[string]interface{}{
			"sessionId": ev.sessionID,
			"error":     err.Error(),
		})
		return &WorkflowResult{
			Response:  fmt.Sprintf("Sorry, I encountered an error while processing your question: %v", err),
			Citations: []Citation{},
		}, nil
	}

	if err := w.rememberTurn(ctx, sc, ev.message, answer); err != nil {
		return nil, err
	}

	citations := make([]Citation, 0, len(sources))
	for _, c := range sources {
		citations = append(citations, Citation{FileName: sc.FileName, ContentSnippet: truncate(c.Text, snippetChars)})
	}
	return &WorkflowResult{
		Response:   answer,
		HasContext: true,
		FileName:   sc.FileName,
		Citations:  citations,
	}, nil
}

// rememberTurn appends the turn to the stored memory atomically so that
// concurrent turns on one session all survive. A context evicted since it
// was read is written back whole.
func (w *Workflow) rememberTurn(ctx context.Context, sc *session.Context, question, answer string) error {
	found, err := w.store.Update(ctx, sc.SessionID, func(stored *session.Context) {
		stored.Remember(llm.RoleUser, question)
		stored.Remember(llm.RoleAssistant, answer)
	})
	if err != nil || found {
		return err
	}
	sc.Remember(llm.RoleUser, question)
	sc.Remember(llm.RoleAssistant, answer)
	return w.store.Put(ctx, sc)
}

func (w *Workflow) chatWithContext(ctx context.Context, sc *session.Context, message string) (string, []session.Chunk, error) {
	sources := sc.Chunks
	if len(sc.Chunks) > w.config.TopK {
		vectors, err := w.embedder.Embed(ctx, []string{message})
		if err != nil {
			return "", nil, err
		}
		sources = TopK(vectors[0], sc.Chunks, w.config.TopK)
	}

	texts := make([]string, len(sources))
	for i, c := range sources {
		texts[i] = c.Text
	}
	system := systemPrompt +
		"\n\nContext information is below.\n--------------------\n" +
		strings.Join(texts, "\n\n") +
		"\n--------------------\n"

	msgs := make([]llm.Message, 0, len(sc.Memory)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range sc.Memory {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	answer, err := w.chat.Chat(ctx, llm.ChatRequest{
		Model:       w.config.ChatModel,
		Temperature: w.config.ChatTemperature,
		Messages:    msgs,
	})
	if err != nil {
		return "", nil, err
	}
	return answer, sources, nil
}
