package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns agent errors into job failures or thrown BPMN errors.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Decision is what HandleJobError did with a job.
type Decision struct {
	Error   *BPMNError
	Retry   bool
	Retries int32
}

// Decide computes the outcome for err without touching the runtime.
func (h *ErrorHandler) Decide(job entities.Job, err error) Decision {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	if bpmnErr.Retries > 0 && job.Retries > 1 {
		retries := int32(bpmnErr.Retries)
		// job.Retries counts the current attempt; never hand back more than remain.
		if remaining := job.Retries - 1; remaining < retries {
			retries = remaining
		}
		return Decision{Error: bpmnErr, Retry: true, Retries: retries}
	}
	return Decision{Error: bpmnErr}
}

// HandleJobError fails the job with retries for retryable codes, otherwise
// throws a BPMN error carrying the error variables.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) Decision {
	d := h.Decide(job, err)
	h.logError(job, d)

	varsJSON, _ := json.Marshal(d.Error.ToErrorVariables())
	if d.Retry {
		cmd, cmdErr := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(d.Retries).
			ErrorMessage(d.Error.Error()).
			VariablesFromString(string(varsJSON))
		if cmdErr != nil {
			h.sendFailed(job, cmdErr)
			return d
		}
		if _, sendErr := cmd.Send(ctx); sendErr != nil {
			h.sendFailed(job, sendErr)
		}
		return d
	}

	cmd, cmdErr := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(d.Error.Code).
		ErrorMessage(d.Error.Message).
		VariablesFromString(string(varsJSON))
	if cmdErr != nil {
		h.sendFailed(job, cmdErr)
		return d
	}
	if _, sendErr := cmd.Send(ctx); sendErr != nil {
		h.sendFailed(job, sendErr)
	}
	return d
}

func (h *ErrorHandler) sendFailed(job entities.Job, err error) {
	h.logger.Error("failed to report job error", map[string]interface{}{
		"jobKey": job.Key,
		"error":  err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, d Decision) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        d.Error.Code,
		"message":          d.Error.Message,
		"details":          d.Error.Details,
		"retryable":        d.Error.Retryable,
		"retry":            d.Retry,
		"retries":          d.Retries,
		"errorCategory":    d.Error.ErrorVariables["errorCategory"],
		"workflowInstance": job.ProcessInstanceKey,
	})
}
