package filechat

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"mediguard-agents/internal/common/session"
)

// RunesPerToken converts a token window into the rune cap of one chunk.
const RunesPerToken = 4

// SplitText cuts text into windows of at most size words that overlap by
// overlap words. Words stand in for tokens, and no chunk is longer than
// size*RunesPerToken runes: words beyond that are split, which bounds text
// without whitespace such as CJK or table dumps.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	maxRunes := size * RunesPerToken

	words := splitWords(text, maxRunes)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(words); {
		end, runes := start, 0
		for end < len(words) && end-start < size {
			n := utf8.RuneCountInString(words[end])
			if end > start {
				n++ // separator
			}
			if end > start && runes+n > maxRunes {
				break
			}
			runes += n
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// splitWords returns the whitespace separated words of text with every word
// longer than maxRunes cut into maxRunes pieces.
func splitWords(text string, maxRunes int) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= maxRunes {
			words = append(words, f)
			continue
		}
		r := []rune(f)
		for len(r) > maxRunes {
			words = append(words, string(r[:maxRunes]))
			r = r[maxRunes:]
		}
		if len(r) > 0 {
			words = append(words, string(r))
		}
	}
	return words
}

type scoredChunk struct {
	chunk session.Chunk
	score float64
}

// TopK returns the k chunks most similar to query, best first.
func TopK(query []float32, chunks []session.Chunk, k int) []session.Chunk {
	if k <= 0 || len(chunks) == 0 {
		return nil
	}
	scored := make([]scoredChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, scoredChunk{chunk: c, score: cosineSimilarity(query, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	out := make([]session.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.chunk
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// truncate keeps the first n characters and marks the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
