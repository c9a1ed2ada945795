// internal/workers/mediguard/decision/handler.go
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediguard-agents/internal/common/camunda"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"
	"mediguard-agents/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType    = config.AgentDecision
	Description = "MediGuard: Makes decisions based on evaluation confidence and guides the user."
)

// InputSchema type checks the payload; presence of the score and the
// evaluation is checked by Execute, which also accepts the nested form.
var InputSchema = validation.MustCompile(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"confidence_score":  map[string]interface{}{"type": "number"},
		"evaluation":        map[string]interface{}{"type": "object"},
		"evaluation_result": map[string]interface{}{"type": "object"},
		"alerts":            map[string]interface{}{"type": []interface{}{"array", "null"}},
		"user_id":           map[string]interface{}{"type": "string"},
		"session_id":        map[string]interface{}{"type": "string"},
		"meval_output":      map[string]interface{}{"type": "object"},
	},
})

type Handler struct {
	config     *Config
	audit      AuditStore
	errHandler *errors.ErrorHandler
	logger     logger.Logger
	now        func() time.Time
}

// NewHandler accepts a nil audit store; decisions are then not recorded.
func NewHandler(config *Config, audit AuditStore, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		audit:      audit,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
		now:        time.Now,
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

// DecodeInput validates the job variables and unwraps meval_output when the
// payload is nested.
func DecodeInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewValidationError("variables", fmt.Sprintf("parse input: %v", err))
	}
	if nested, ok := raw["meval_output"].(map[string]interface{}); ok {
		raw = nested
	}
	if err := InputSchema.Validate(raw); err != nil {
		return nil, err
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	var input Input
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, errors.NewValidationError("variables", fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute maps the confidence score onto a recommendation.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ConfidenceScore == nil {
		return nil, errors.NewValidationError("confidence_score", "confidence_score is required")
	}
	score := *input.ConfidenceScore
	if score < 0 || score > 1 {
		return nil, errors.NewValidationError("confidence_score",
			fmt.Sprintf("confidence_score %v is outside [0, 1]", score))
	}
	evaluation := input.Evaluation
	if evaluation == nil {
		evaluation = input.EvaluationResult
	}
	if evaluation == nil {
		return nil, errors.NewValidationError("evaluation", "evaluation is required")
	}
	alerts := input.Alerts
	if alerts == nil {
		alerts = []interface{}{}
	}

	tier, message := Decide(score, h.config.HighThreshold, h.config.MediumThreshold)
	h.logger.Info("decision made", map[string]interface{}{
		"userId":          input.UserID,
		"sessionId":       input.SessionID,
		"confidenceScore": score,
		"tier":            tier,
	})
	h.record(ctx, input, tier, score, message)

	return &Output{
		Status:          StatusSuccess,
		Message:         message,
		ConfidenceScore: score,
		Alerts:          alerts,
		Evaluation:      evaluation,
		Tier:            tier,
		Disclaimer:      Disclaimer,
	}, nil
}

// Decide picks the tier for score: high from high upwards, medium from
// medium upwards, low below.
func Decide(score, high, medium float64) (Tier, string) {
	switch {
	case score >= high:
		return TierHigh, HighMessage
	case score >= medium:
		return TierMedium, MediumMessage
	default:
		return TierLow, LowMessage
	}
}

func (h *Handler) record(ctx context.Context, input *Input, tier Tier, score float64, message string) {
	if h.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.config.AuditTimeout)
	defer cancel()

	err := h.audit.Record(ctx, Record{
		UserID:          input.UserID,
		SessionID:       input.SessionID,
		Tier:            tier,
		ConfidenceScore: score,
		Message:         message,
		DecidedAt:       h.now().UTC(),
	})
	if err != nil {
		h.logger.Warn("decision audit failed", map[string]interface{}{
			"userId": input.UserID,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.AgentJobsFailed.WithLabelValues(TaskType, d.Error.Code).Inc()
}
