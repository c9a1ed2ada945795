// internal/workers/weather/get-weather/handler.go
package getweather

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mediguard-agents/internal/common/camunda"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	commonhttp "mediguard-agents/internal/common/http"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"
	"mediguard-agents/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType    = config.AgentWeather
	Description = "Get weather forecast data"
	ServiceName = "weatherapi"
)

var InputSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"city_name", "date"},
	"properties": map[string]interface{}{
		"city_name": map[string]interface{}{"type": "string", "minLength": 1},
		"date":      map[string]interface{}{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
	},
})

type Handler struct {
	config     *Config
	client     *commonhttp.Client
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		client:     commonhttp.NewClient(config.HTTPTimeout),
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

// Execute fetches the forecast for one city and day.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", input.CityName)
	params.Set("dt", input.Date)
	params.Set("key", h.config.APIKey)

	sep := "?"
	if strings.Contains(h.config.BaseURL, "?") {
		sep = "&"
	}
	start := time.Now()
	body, err := h.client.Get(ctx, h.config.BaseURL+sep+params.Encode(), nil)
	if err != nil {
		stdErr := commonhttp.UpstreamError(ServiceName, err)
		metrics.ObserveUpstream(ServiceName, stdErr)
		h.logger.Error("weather request failed", map[string]interface{}{
			"city":      input.CityName,
			"date":      input.Date,
			"errorCode": stdErr.Code,
			"error":     stdErr.Details,
		})
		return nil, stdErr
	}
	metrics.ObserveUpstream(ServiceName, nil)

	day, err := extractDay(body)
	if err != nil {
		return nil, err
	}

	h.logger.Info("weather forecast fetched", map[string]interface{}{
		"city":     input.CityName,
		"date":     input.Date,
		"duration": time.Since(start).String(),
	})
	return &Output{WeatherForecast: day}, nil
}

func validateInput(input *Input) error {
	if strings.TrimSpace(input.CityName) == "" {
		return errors.NewValidationError("city_name", "city_name is required")
	}
	if input.Date == "" {
		return errors.NewValidationError("date", "date is required")
	}
	if _, err := time.Parse(DateLayout, input.Date); err != nil {
		return errors.NewValidationError("date", fmt.Sprintf("date %q is not in yyyy-MM-dd format", input.Date))
	}
	return nil
}

// extractDay returns forecast.forecastday[0].day as sent by the provider.
func extractDay(body []byte) (json.RawMessage, error) {
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewUpstreamResponseError(ServiceName, fmt.Sprintf("decode response: %v", err))
	}
	if resp.Forecast == nil || len(resp.Forecast.ForecastDay) == 0 {
		return nil, errors.NewUpstreamResponseError(ServiceName, "response has no forecast.forecastday entries")
	}
	day := bytes.TrimSpace(resp.Forecast.ForecastDay[0].Day)
	if len(day) == 0 || bytes.Equal(day, []byte("null")) {
		return nil, errors.NewUpstreamResponseError(ServiceName, "forecast.forecastday[0] has no day")
	}
	return json.RawMessage(day), nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.AgentJobsFailed.WithLabelValues(TaskType, d.Error.Code).Inc()
}
