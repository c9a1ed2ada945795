// internal/workers/mediguard/file-chat/handler.go
package filechat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"mediguard-agents/internal/common/camunda"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/files"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"
	"mediguard-agents/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType    = config.AgentFileChat
	Description = "A conversational EASAgent that parses medical files and generates structured summaries with PDF using LlamaIndex and OpenAI"
	MessageType = "eas_output"
)

var InputSchema = validation.MustCompile(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"message":    map[string]interface{}{"type": "string"},
		"file_id":    map[string]interface{}{"type": []interface{}{"string", "null"}},
		"session_id": map[string]interface{}{"type": []interface{}{"string", "null"}},
		"user_id":    map[string]interface{}{"type": []interface{}{"string", "null"}},
	},
})

// FileLoader fetches uploaded files. *files.Client implements it.
type FileLoader interface {
	Load(ctx context.Context, fileID string) (*files.File, error)
}

type Handler struct {
	config     *Config
	files      FileLoader
	workflow   *Workflow
	messenger  camunda.Messenger
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, loader FileLoader, workflow *Workflow, messenger camunda.Messenger, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		files:      loader,
		workflow:   workflow,
		messenger:  messenger,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := DecodeInput(job.Variables)
	if err != nil {
		h.failJob(client, job, err)
		return
	}
	input.ProcessInstanceKey = job.ProcessInstanceKey

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.AgentJobsCompleted.WithLabelValues(TaskType).Inc()
}

func DecodeInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewValidationError("variables", fmt.Sprintf("parse input: %v", err))
	}
	if err := InputSchema.Validate(raw); err != nil {
		return nil, err
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewValidationError("variables", fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute loads the optional file, runs the workflow and forwards the
// answer to the evaluation agent.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	sessionID := sessionKey(input)

	var content []byte
	var fileName string
	if input.FileID != "" {
		file, err := h.files.Load(ctx, input.FileID)
		if err != nil {
			h.logger.Error("file load failed", map[string]interface{}{
				"fileId": input.FileID,
				"error":  err.Error(),
			})
			return &Output{
				Response:  "⚠️ Failed to load file: " + errorText(err),
				Citations: []Citation{},
			}, nil
		}
		content, fileName = file.Content, file.Name
		h.logger.Info("file received", map[string]interface{}{
			"fileName": fileName,
			"size":     len(content),
		})
	}

	result, err := h.workflow.Run(ctx, WorkflowInput{
		Message:     input.Message,
		SessionID:   sessionID,
		FileContent: content,
		FileName:    fileName,
	})
	if err != nil {
		stdErr := errors.Normalize(err)
		if stdErr.Code != errors.ErrCodeInternal {
			return nil, stdErr
		}
		return &Output{
			Response:  "❌ Unexpected error occurred: " + errorText(err),
			Citations: []Citation{},
		}, nil
	}

	response := result.Response
	if response == "" {
		response = "No response generated."
	}

	err = h.messenger.Send(ctx, camunda.Message{
		Recipient:          h.config.Recipient,
		Type:               MessageType,
		SenderID:           TaskType,
		SessionID:          input.SessionID,
		UserID:             input.UserID,
		ProcessInstanceKey: input.ProcessInstanceKey,
		Payload: map[string]interface{}{
			"session_id": input.SessionID,
			"user_id":    input.UserID,
			"summaries":  Summaries{Response: result.Response, Citations: result.Citations},
			"file_name":  fileName,
		},
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Response:   response,
		FileParsed: len(content) > 0,
		HasContext: result.HasContext,
		Citations:  result.Citations,
		FileName:   fileName,
	}, nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.AgentJobsFailed.WithLabelValues(TaskType, d.Error.Code).Inc()
}

// sessionKey falls back to the user id, then the process instance, so that
// a context is always stored under some key.
func sessionKey(input *Input) string {
	switch {
	case input.SessionID != "":
		return input.SessionID
	case input.UserID != "":
		return "user:" + input.UserID
	default:
		return "instance:" + strconv.FormatInt(input.ProcessInstanceKey, 10)
	}
}

func errorText(err error) string {
	if stdErr := errors.Normalize(err); stdErr.Details != "" {
		return stdErr.Details
	}
	return err.Error()
}
