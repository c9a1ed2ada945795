package validation

import (
	"fmt"
	"strings"

	"mediguard-agents/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema.
type Schema struct {
	raw      map[string]interface{}
	compiled *gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Compile parses schema, which must be a JSON schema document in Go form.
func Compile(schema map[string]interface{}) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: schema, compiled: compiled}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(schema map[string]interface{}) *Schema {
	s, err := Compile(schema)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema document as given to Compile.
func (s *Schema) Raw() map[string]interface{} {
	return s.raw
}

// Check validates doc and reports every violation.
func (s *Schema) Check(doc interface{}) (*ValidationResult, error) {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return vr, nil
}

// Validate returns a validation error naming the violated fields, or nil.
func (s *Schema) Validate(doc interface{}) error {
	vr, err := s.Check(doc)
	if err != nil {
		return errors.NewValidationError("input", err.Error())
	}
	if vr.Valid {
		return nil
	}
	stdErr := errors.NewValidationError(vr.firstField(), strings.Join(vr.GetErrorMessages(), "; "))
	return stdErr.WithMetadata("violations", len(vr.Errors))
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, e := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, e := range vr.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) firstField() string {
	if len(vr.Errors) == 0 {
		return "input"
	}
	return vr.Errors[0].Field
}
