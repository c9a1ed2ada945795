// Package errors provides the typed error taxonomy shared by all agents and its
// translation into job failures and BPMN errors on the orchestration runtime.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeFileLoadFailed        ErrorCode = "FILE_LOAD_FAILED"
	ErrCodeDocumentParsingFailed ErrorCode = "DOCUMENT_PARSING_FAILED"
	ErrCodeUpstreamAPIFailed     ErrorCode = "UPSTREAM_API_FAILED"
	ErrCodeUpstreamTimeout       ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeLLMResponseInvalid    ErrorCode = "LLM_RESPONSE_INVALID"
	ErrCodeUpstreamResponse      ErrorCode = "UPSTREAM_RESPONSE_INVALID"
	ErrCodeSessionStoreFailed    ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeMessageForwardFailed  ErrorCode = "MESSAGE_FORWARD_FAILED"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Error categories.
const (
	CategoryValidation = "VALIDATION"
	CategoryExternal   = "EXTERNAL"
	CategoryParsing    = "PARSING"
	CategoryInternal   = "INTERNAL"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the receiver.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the variables attached to a failed or thrown job.
// status/message mirror the {"status":"error","message":...} result contract.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	msg := e.Message
	if e.Details != "" {
		msg = e.Message + ": " + e.Details
	}
	vars := map[string]interface{}{
		"status":       "error",
		"message":      msg,
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// NewValidationError reports a malformed or incomplete agent payload.
func NewValidationError(field, details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Invalid input", details, false, nil).
		WithMetadata("field", field)
}

// NewFileLoadError reports a failure fetching a file from the runtime file API.
func NewFileLoadError(fileID string, err error) *StandardError {
	return newError(ErrCodeFileLoadFailed, "Failed to load file", err.Error(), true, err).
		WithMetadata("fileId", fileID)
}

// NewParsingError reports a document that could not be turned into text.
func NewParsingError(fileName string, err error) *StandardError {
	return newError(ErrCodeDocumentParsingFailed, "Document parsing failed", err.Error(), false, err).
		WithMetadata("fileName", fileName)
}

// NewUpstreamError reports a failed call to a third-party API. Server-side
// failures are retryable, client-side ones are not.
func NewUpstreamError(service string, statusCode int, err error) *StandardError {
	retryable := statusCode == 0 || statusCode >= 500 || statusCode == 429
	details := err.Error()
	if statusCode > 0 {
		details = fmt.Sprintf("status %d: %s", statusCode, details)
	}
	return newError(ErrCodeUpstreamAPIFailed, fmt.Sprintf("Upstream service '%s' error", service), details, retryable, err).
		WithMetadata("service", service)
}

// NewUpstreamTimeoutError reports an upstream call that exceeded its deadline.
func NewUpstreamTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeUpstreamTimeout, fmt.Sprintf("Upstream service '%s' timeout", service), err.Error(), true, err).
		WithMetadata("service", service)
}

// NewLLMResponseError reports a completion that did not have the requested shape.
func NewLLMResponseError(details string, err error) *StandardError {
	if err != nil {
		details = details + ": " + err.Error()
	}
	return newError(ErrCodeLLMResponseInvalid, "LLM returned an invalid response", details, true, err)
}

// NewUpstreamResponseError reports a well-formed upstream reply that lacks
// the expected fields.
func NewUpstreamResponseError(service, details string) *StandardError {
	return newError(ErrCodeUpstreamResponse, fmt.Sprintf("Upstream service '%s' returned an unexpected response", service), details, false, nil).
		WithMetadata("service", service)
}

// NewSessionStoreError reports a failing session context store.
func NewSessionStoreError(op string, err error) *StandardError {
	return newError(ErrCodeSessionStoreFailed, "Session store error", fmt.Sprintf("%s: %s", op, err.Error()), true, err)
}

// NewForwardError reports a message that could not be sent to another agent.
func NewForwardError(recipient string, err error) *StandardError {
	return newError(ErrCodeMessageForwardFailed, fmt.Sprintf("Failed to forward message to '%s'", recipient), err.Error(), true, err).
		WithMetadata("recipient", recipient)
}

// NewInternalError wraps anything without a better classification.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// FromUpstream classifies a transport error from an upstream call.
func FromUpstream(service string, err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamTimeoutError(service, err)
	}
	return NewUpstreamError(service, 0, err)
}

// Normalize returns err as a *StandardError, wrapping it as internal when needed.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamTimeoutError("unknown", err)
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetRetryCount returns how many job retries a code deserves.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUpstreamAPIFailed,
		ErrCodeFileLoadFailed,
		ErrCodeSessionStoreFailed,
		ErrCodeMessageForwardFailed:
		return 3
	case ErrCodeUpstreamTimeout:
		return 2
	case ErrCodeLLMResponseInvalid:
		return 1
	default:
		return 0
	}
}

// GetErrorCategory groups codes for logging and metrics.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed:
		return CategoryValidation
	case ErrCodeUpstreamAPIFailed, ErrCodeUpstreamTimeout, ErrCodeFileLoadFailed,
		ErrCodeMessageForwardFailed, ErrCodeSessionStoreFailed:
		return CategoryExternal
	case ErrCodeDocumentParsingFailed, ErrCodeLLMResponseInvalid, ErrCodeUpstreamResponse:
		return CategoryParsing
	default:
		return CategoryInternal
	}
}

// ConvertToBPMNError maps a StandardError onto the runtime's error model.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"errorCategory": GetErrorCategory(stdErr.Code),
		"timestamp":     stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}
