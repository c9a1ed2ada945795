// internal/workers/mediguard/medical-evaluation/handler.go
package medicaleval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediguard-agents/internal/common/camunda"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/llm"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"
	"mediguard-agents/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType    = config.AgentEvaluation
	Description = "MediGuard: Medical Evaluation Agent that analyzes structured health summaries and raises concerns, risks, and recommendations."
	MessageType = "evaluation_result"
)

// InputSchema describes the accepted payload, flat or nested under input_data.
var InputSchema = validation.MustCompile(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"user_id":    map[string]interface{}{"type": "string"},
		"session_id": map[string]interface{}{"type": "string"},
		"summary":    map[string]interface{}{"type": "string"},
		"raw_text":   map[string]interface{}{"type": "string"},
		"extracted":  map[string]interface{}{"type": []interface{}{"object", "null"}},
		"alerts":     map[string]interface{}{"type": []interface{}{"array", "null"}},
		"summaries":  map[string]interface{}{"type": []interface{}{"object", "null"}},
		"input_data": map[string]interface{}{"type": "object"},
	},
})

// ChatModel is satisfied by *llm.Client.
type ChatModel interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

type Handler struct {
	config     *Config
	chat       ChatModel
	messenger  camunda.Messenger
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, chat ChatModel, messenger camunda.Messenger, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		chat:       chat,
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

// DecodeInput validates the job variables and unwraps input_data when the
// payload is nested.
func DecodeInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewValidationError("variables", fmt.Sprintf("parse input: %v", err))
	}
	if err := InputSchema.Validate(raw); err != nil {
		return nil, err
	}

	body := []byte(variables)
	if nested, ok := raw["input_data"].(map[string]interface{}); ok {
		var err error
		if body, err = json.Marshal(nested); err != nil {
			return nil, errors.NewValidationError("input_data", err.Error())
		}
	}

	var input Input
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, errors.NewValidationError("input_data", fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute asks the model for an evaluation, scores it and forwards it to the
// decision agent.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	summary := input.Summary
	if summary == "" && input.Summaries != nil {
		summary = input.Summaries.Response
	}
	alerts := input.Alerts
	if alerts == nil {
		alerts = []interface{}{}
	}

	completion, err := h.chat.Chat(ctx, llm.ChatRequest{
		Model:       h.config.Model,
		Temperature: h.config.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: BuildPrompt(summary, input.RawText, input.Extracted, alerts)},
		},
	})
	if err != nil {
		h.logger.Error("evaluation request failed", map[string]interface{}{
			"userId": input.UserID,
			"error":  err.Error(),
		})
		return nil, err
	}

	evaluation, err := ParseEvaluation(completion)
	if err != nil {
		h.logger.Warn("evaluation response rejected", map[string]interface{}{
			"userId": input.UserID,
			"error":  err.Error(),
		})
		return nil, err
	}
	score := ConfidenceScore(evaluation)

	err = h.messenger.Send(ctx, camunda.Message{
		Recipient:          h.config.Recipient,
		Type:               MessageType,
		SenderID:           TaskType,
		SessionID:          input.SessionID,
		UserID:             input.UserID,
		ProcessInstanceKey: input.ProcessInstanceKey,
		Payload: map[string]interface{}{
			"evaluation_result": evaluation,
			"confidence_score":  score,
			"user_query":        summary,
			"user_id":           input.UserID,
			"session_id":        input.SessionID,
			"drug_interactions": []interface{}{},
			"summary":           summary,
			"alerts":            alerts,
		},
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("evaluation forwarded", map[string]interface{}{
		"userId":          input.UserID,
		"confidenceScore": score,
		"recipient":       h.config.Recipient,
	})

	return &Output{
		Status:           StatusSuccess,
		Message:          CompleteMessage,
		ConfidenceScore:  score,
		EvaluationResult: evaluation,
	}, nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.AgentJobsFailed.WithLabelValues(TaskType, d.Error.Code).Inc()
}
