package getweather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mediguard-agents/internal/common/camunda/camundatest"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

const dayJSON = `{"maxtemp_c":31.2,"mintemp_c":22.4,"condition":{"text":"Patchy rain nearby","code":1063},"daily_chance_of_rain":84}`

const forecastBody = `{
  "location": {"name": "Chennai", "country": "India"},
  "forecast": {"forecastday": [{"date": "2026-10-20", "day": ` + dayJSON + `, "astro": {"sunrise": "05:58 AM"}}]}
}`

func createTestConfig(baseURL string) *Config {
	c := DefaultConfig()
	c.BaseURL = baseURL
	c.APIKey = "test-key"
	c.Timeout = 5 * time.Second
	c.HTTPTimeout = 2 * time.Second
	return c
}

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Chennai", r.URL.Query().Get("q"))
		assert.Equal(t, "2026-10-20", r.URL.Query().Get("dt"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func validInput() *Input {
	return &Input{CityName: "Chennai", Date: "2026-10-20"}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_ReturnsDayUnchanged(t *testing.T) {
	server := newTestServer(t, http.StatusOK, forecastBody)
	h := NewHandler(createTestConfig(server.URL), logger.NewTestLogger(t))

	output, err := h.Execute(context.Background(), validInput())

	require.NoError(t, err)
	assert.JSONEq(t, dayJSON, string(output.WeatherForecast))
}

func TestHandler_Execute_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      errors.ErrorCode
		wantRetryable bool
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{"error":"bad gateway"}`, wantCode: errors.ErrCodeUpstreamAPIFailed, wantRetryable: true},
		{name: "bad key", status: http.StatusForbidden, body: `{"error":{"code":2008,"message":"API key disabled"}}`, wantCode: errors.ErrCodeUpstreamAPIFailed},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantCode: errors.ErrCodeUpstreamAPIFailed, wantRetryable: true},
		{name: "no forecast", status: http.StatusOK, body: `{"location":{}}`, wantCode: errors.ErrCodeUpstreamResponse},
		{name: "empty forecastday", status: http.StatusOK, body: `{"forecast":{"forecastday":[]}}`, wantCode: errors.ErrCodeUpstreamResponse},
		{name: "null day", status: http.StatusOK, body: `{"forecast":{"forecastday":[{"day":null}]}}`, wantCode: errors.ErrCodeUpstreamResponse},
		{name: "not json", status: http.StatusOK, body: `<html></html>`, wantCode: errors.ErrCodeUpstreamResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.status, tt.body)
			h := NewHandler(createTestConfig(server.URL), logger.NewNoOpLogger())

			output, err := h.Execute(context.Background(), validInput())

			assert.Nil(t, output)
			require.Error(t, err)
			var stdErr *errors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, tt.wantCode, stdErr.Code)
			assert.Equal(t, tt.wantRetryable, stdErr.Retryable)
		})
	}
}

func TestHandler_Execute_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer server.Close()

	cfg := createTestConfig(server.URL)
	cfg.HTTPTimeout = 50 * time.Millisecond
	h := NewHandler(cfg, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), validInput())

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUpstreamTimeout), "got %v", err)
}

func TestHandler_Execute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		input     *Input
		wantField string
	}{
		{name: "missing city", input: &Input{Date: "2026-10-20"}, wantField: "city_name"},
		{name: "blank city", input: &Input{CityName: "  ", Date: "2026-10-20"}, wantField: "city_name"},
		{name: "missing date", input: &Input{CityName: "Chennai"}, wantField: "date"},
		{name: "wrong format", input: &Input{CityName: "Chennai", Date: "20/10/2026"}, wantField: "date"},
		{name: "impossible date", input: &Input{CityName: "Chennai", Date: "2026-02-30"}, wantField: "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(createTestConfig("http://127.0.0.1:1"), logger.NewNoOpLogger())

			_, err := h.Execute(context.Background(), tt.input)

			var stdErr *errors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
			assert.Equal(t, tt.wantField, stdErr.Metadata["field"])
		})
	}
}

func TestDecodeInput(t *testing.T) {
	input, err := DecodeInput(`{"city_name":"Chennai","date":"2026-10-20"}`)
	require.NoError(t, err)
	assert.Equal(t, validInput(), input)

	_, err = DecodeInput(`{"city_name":"Chennai"}`)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	_, err = DecodeInput(`{"city_name":"Chennai","date":"tomorrow"}`)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	_, err = DecodeInput(`[]`)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
}

// ==========================
// Job Command Tests
// ==========================

func TestHandler_Handle_JobCommands(t *testing.T) {
	const variables = `{"city_name":"Chennai","date":"2026-10-20"}`

	tests := []struct {
		name        string
		variables   string
		status      int
		body        string
		wantCommand string
		wantCode    errors.ErrorCode
		wantRetries int32
	}{
		{name: "completes with the forecast", variables: variables, status: http.StatusOK, body: forecastBody, wantCommand: "complete"},
		{name: "unavailable upstream is retried", variables: variables, status: http.StatusServiceUnavailable, body: `{}`,
			wantCommand: "fail", wantCode: errors.ErrCodeUpstreamAPIFailed, wantRetries: 2},
		{name: "rejected key throws", variables: variables, status: http.StatusForbidden, body: `{"error":{"code":2008}}`,
			wantCommand: "throw", wantCode: errors.ErrCodeUpstreamAPIFailed},
		{name: "missing forecast throws", variables: variables, status: http.StatusOK, body: `{"location":{}}`,
			wantCommand: "throw", wantCode: errors.ErrCodeUpstreamResponse},
		{name: "missing date throws", variables: `{"city_name":"Chennai"}`, status: http.StatusOK, body: forecastBody,
			wantCommand: "throw", wantCode: errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.status, tt.body)
			client := camundatest.NewJobClient()

			NewHandler(createTestConfig(server.URL), logger.NewTestLogger(t)).Handle(client,
				entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 41, Retries: 3, Variables: tt.variables}})

			var vars map[string]interface{}
			switch tt.wantCommand {
			case "complete":
				require.Len(t, client.Completed(), 1)
				assert.Empty(t, client.Failed())
				assert.Empty(t, client.Thrown())
				vars = camundatest.Vars(client.Completed()[0].Variables)
				assert.Equal(t, "Patchy rain nearby", vars["weather_forecast"].(map[string]interface{})["condition"].(map[string]interface{})["text"])
				return
			case "fail":
				failed := client.Failed()
				require.Len(t, failed, 1)
				assert.Empty(t, client.Thrown())
				assert.Equal(t, int64(41), failed[0].JobKey)
				assert.Equal(t, tt.wantRetries, failed[0].Retries)
				vars = camundatest.Vars(failed[0].Variables)
				assert.Equal(t, true, vars["retryable"])
			case "throw":
				thrown := client.Thrown()
				require.Len(t, thrown, 1)
				assert.Empty(t, client.Failed())
				assert.Equal(t, string(tt.wantCode), thrown[0].ErrorCode)
				vars = camundatest.Vars(thrown[0].Variables)
				assert.Equal(t, false, vars["retryable"])
			}
			assert.Empty(t, client.Completed())
			assert.Equal(t, "error", vars["status"])
			assert.Equal(t, string(tt.wantCode), vars["errorCode"])
			assert.NotEmpty(t, vars["message"])
		})
	}
}
