// internal/workers/mediguard/decision/models.go
package decision

// Input is the evaluation agent's forward. The evaluation arrives as
// evaluation_result from the evaluation agent and as evaluation from older
// callers.
type Input struct {
	ConfidenceScore  *float64               `json:"confidence_score"`
	Evaluation       map[string]interface{} `json:"evaluation,omitempty"`
	EvaluationResult map[string]interface{} `json:"evaluation_result,omitempty"`
	Alerts           []interface{}          `json:"alerts,omitempty"`
	UserID           string                 `json:"user_id,omitempty"`
	SessionID        string                 `json:"session_id,omitempty"`
	Summary          string                 `json:"summary,omitempty"`
}

type Output struct {
	Status          string                 `json:"status"`
	Message         string                 `json:"message"`
	ConfidenceScore float64                `json:"confidence_score"`
	Alerts          []interface{}          `json:"alerts"`
	Evaluation      map[string]interface{} `json:"evaluation"`
	Tier            Tier                   `json:"tier"`
	Disclaimer      string                 `json:"disclaimer"`
}

type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

const (
	StatusSuccess = "success"

	HighMessage   = "✅ High confidence. Share the PDF summary with your doctor."
	MediumMessage = "⚠️ Medium confidence. Please upload more data for better results."
	LowMessage    = "❌ Low confidence. Not enough data. Please consult your healthcare provider."

	Disclaimer = "This tool does not provide medical advice. Always consult a licensed medical professional."
)
