// internal/workers/mediguard/medical-evaluation/models.go
package medicaleval

// Input is the health summary bundle. The file chat agent forwards its
// answer under summaries; an extraction payload may arrive nested
// under input_data.
type Input struct {
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Summary   string                 `json:"summary,omitempty"`
	RawText   string                 `json:"raw_text,omitempty"`
	Extracted map[string]interface{} `json:"extracted,omitempty"`
	Alerts    []interface{}          `json:"alerts,omitempty"`
	Summaries *Summaries             `json:"summaries,omitempty"`
	FileName  string                 `json:"file_name,omitempty"`

	ProcessInstanceKey int64 `json:"-"`
}

type Summaries struct {
	Response  string        `json:"response"`
	Citations []interface{} `json:"citations,omitempty"`
}

type Output struct {
	Status           string                 `json:"status"`
	Message          string                 `json:"message"`
	ConfidenceScore  float64                `json:"confidence_score"`
	EvaluationResult map[string]interface{} `json:"evaluation_result"`
}

const (
	StatusSuccess   = "success"
	CompleteMessage = "Evaluation complete and forwarded to DEC agent"
)
