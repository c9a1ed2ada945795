// internal/workers/mediguard/file-chat/models.go
package filechat

type Input struct {
	Message   string `json:"message"`
	FileID    string `json:"file_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	ProcessInstanceKey int64 `json:"-"`
}

type Output struct {
	Response   string     `json:"response"`
	FileParsed bool       `json:"file_parsed"`
	HasContext bool       `json:"has_context"`
	Citations  []Citation `json:"citations"`
	FileName   string     `json:"file_name,omitempty"`
}

type Citation struct {
	FileName       string `json:"file_name"`
	ContentSnippet string `json:"content_snippet"`
}

// Summaries is the part of the forwarded message the evaluation agent reads.
type Summaries struct {
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
}

// Source of the parsed text.
const (
	ParsedWithCloud    = "llama_parse"
	ParsedWithFallback = "fallback"
)
