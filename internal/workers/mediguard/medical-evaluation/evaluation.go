package medicaleval

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/validation"
)

const (
	HighScore = 1.0
	BaseScore = 0.5
)

var freeForm = map[string]interface{}{
	"type": []interface{}{"string", "array", "object", "null"},
}

// evaluationSchema only insists on an object; the four keys are type checked
// when present.
var evaluationSchema = validation.MustCompile(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"concerns":           freeForm,
		"risk_assessment":    freeForm,
		"recommendations":    freeForm,
		"relevance_analysis": freeForm,
	},
})

// BuildPrompt renders the single user prompt sent to the model.
func BuildPrompt(summary, rawText string, extracted map[string]interface{}, alerts []interface{}) string {
	if extracted == nil {
		extracted = map[string]interface{}{}
	}
	extractedJSON, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		extractedJSON = []byte("{}")
	}
	if alerts == nil {
		alerts = []interface{}{}
	}
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		alertsJSON = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("\nYou are a medical assistant. Analyze the following health summary and extracted data:\n\n")
	fmt.Fprintf(&b, "Summary:\n%s\n\n", summary)
	fmt.Fprintf(&b, "Raw Text:\n%s\n\n", rawText)
	fmt.Fprintf(&b, "Extracted Data:\n%s\n\n", extractedJSON)
	fmt.Fprintf(&b, "Alerts:\n%s\n\n", alertsJSON)
	b.WriteString("Please provide:\n" +
		"- Key medical concerns (if any)\n" +
		"- Risk assessment based on content\n" +
		"- Personalized recommendations\n" +
		"- Relevance of the extracted data\n\n" +
		"Respond in JSON format with keys: concerns, risk_assessment, recommendations, relevance_analysis\n")
	return b.String()
}

// ParseEvaluation decodes the model completion into a JSON object.
func ParseEvaluation(completion string) (map[string]interface{}, error) {
	body := stripCodeFence(completion)
	if body == "" {
		return nil, errors.NewLLMResponseError("empty completion", nil)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, errors.NewLLMResponseError("completion is not valid JSON", err)
	}
	if err := evaluationSchema.Validate(doc); err != nil {
		return nil, errors.NewLLMResponseError(errors.Normalize(err).Details, err)
	}
	result, ok := doc.(map[string]interface{})
	if !ok {
		return nil, errors.NewLLMResponseError("completion is not a JSON object", nil)
	}
	return result, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ConfidenceScore is HighScore when the evaluation carries any
// recommendation and BaseScore otherwise.
func ConfidenceScore(evaluation map[string]interface{}) float64 {
	if nonEmpty(evaluation["recommendations"]) {
		return HighScore
	}
	return BaseScore
}

func nonEmpty(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Bool:
		return rv.Bool()
	default:
		return true
	}
}
