package medicaleval

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"mediguard-agents/internal/common/camunda"
	"mediguard-agents/internal/common/camunda/camundatest"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/llm"
	"mediguard-agents/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockChat struct {
	mock.Mock
}

func (m *MockChat) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, msg camunda.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// ==========================
// Test Helpers
// ==========================

func createTestInput() *Input {
	return &Input{
		UserID:    "u-1",
		SessionID: "s-1",
		Summary:   "Fasting glucose 130 mg/dL.",
		RawText:   "Glucose (fasting): 130 mg/dL",
		Extracted: map[string]interface{}{"glucose": 130},
		Alerts:    []interface{}{"glucose above range"},
	}
}

const fullEvaluation = `{
  "concerns": ["elevated fasting glucose"],
  "risk_assessment": "moderate risk of prediabetes",
  "recommendations": ["repeat HbA1c test", "reduce sugar intake"],
  "relevance_analysis": "glucose value is directly relevant"
}`

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_ForwardsEvaluation(t *testing.T) {
	chat := new(MockChat)
	messenger := new(MockMessenger)

	var req llm.ChatRequest
	chat.On("Chat", mock.Anything, mock.AnythingOfType("llm.ChatRequest")).
		Run(func(args mock.Arguments) { req = args.Get(1).(llm.ChatRequest) }).
		Return("```json\n"+fullEvaluation+"\n```", nil).Once()

	var sent camunda.Message
	messenger.On("Send", mock.Anything, mock.AnythingOfType("camunda.Message")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(camunda.Message) }).
		Return(nil).Once()

	h := NewHandler(DefaultConfig(), chat, messenger, logger.NewTestLogger(t))
	output, err := h.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, output.Status)
	assert.Equal(t, "Evaluation complete and forwarded to DEC agent", output.Message)
	assert.Equal(t, 1.0, output.ConfidenceScore)
	assert.Equal(t, "moderate risk of prediabetes", output.EvaluationResult["risk_assessment"])

	assert.Equal(t, "gpt-4", req.Model)
	assert.InDelta(t, 0.4, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Summary:\nFasting glucose 130 mg/dL.")

	chat.AssertExpectations(t)
	messenger.AssertExpectations(t)
	assert.Equal(t, config.AgentDecision, sent.Recipient)
	assert.Equal(t, MessageType, sent.Type)
	assert.Equal(t, TaskType, sent.SenderID)
	assert.Equal(t, 1.0, sent.Payload["confidence_score"])
	assert.Equal(t, "Fasting glucose 130 mg/dL.", sent.Payload["user_query"])
	assert.Equal(t, "Fasting glucose 130 mg/dL.", sent.Payload["summary"])
	assert.Equal(t, "u-1", sent.Payload["user_id"])
	assert.Equal(t, "s-1", sent.Payload["session_id"])
	assert.Equal(t, []interface{}{}, sent.Payload["drug_interactions"])
	assert.Equal(t, []interface{}{"glucose above range"}, sent.Payload["alerts"])
	assert.Equal(t, output.EvaluationResult, sent.Payload["evaluation_result"])
}

func TestHandler_Execute_ConfidenceFromRecommendations(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		wantScore  float64
	}{
		{name: "non-empty list", completion: `{"recommendations": ["rest"]}`, wantScore: 1.0},
		{name: "non-empty string", completion: `{"recommendations": "drink water"}`, wantScore: 1.0},
		{name: "non-empty object", completion: `{"recommendations": {"diet": "low sugar"}}`, wantScore: 1.0},
		{name: "missing", completion: `{"concerns": ["none"]}`, wantScore: 0.5},
		{name: "empty list", completion: `{"recommendations": []}`, wantScore: 0.5},
		{name: "empty string", completion: `{"recommendations": ""}`, wantScore: 0.5},
		{name: "null", completion: `{"recommendations": null}`, wantScore: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := new(MockChat)
			chat.On("Chat", mock.Anything, mock.Anything).Return(tt.completion, nil)
			messenger := new(MockMessenger)
			messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

			h := NewHandler(DefaultConfig(), chat, messenger, logger.NewNoOpLogger())
			output, err := h.Execute(context.Background(), createTestInput())

			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, output.ConfidenceScore)
		})
	}
}

func TestHandler_Execute_UsesSummariesWhenSummaryEmpty(t *testing.T) {
	chat := new(MockChat)
	var req llm.ChatRequest
	chat.On("Chat", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { req = args.Get(1).(llm.ChatRequest) }).
		Return(fullEvaluation, nil)
	messenger := new(MockMessenger)
	var sent camunda.Message
	messenger.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(camunda.Message) }).
		Return(nil)

	h := NewHandler(DefaultConfig(), chat, messenger, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), &Input{
		UserID:    "u-2",
		Summaries: &Summaries{Response: "Report shows anemia."},
	})

	require.NoError(t, err)
	assert.Contains(t, req.Messages[0].Content, "Summary:\nReport shows anemia.")
	assert.Equal(t, "Report shows anemia.", sent.Payload["summary"])
	assert.Equal(t, []interface{}{}, sent.Payload["alerts"])
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		chatErr    error
		wantCode   errors.ErrorCode
	}{
		{
			name:     "llm failure",
			chatErr:  errors.NewUpstreamError(llm.ServiceName, http.StatusServiceUnavailable, stderrors.New("overloaded")),
			wantCode: errors.ErrCodeUpstreamAPIFailed,
		},
		{name: "not json", completion: "I think you are fine.", wantCode: errors.ErrCodeLLMResponseInvalid},
		{name: "json array", completion: `["rest"]`, wantCode: errors.ErrCodeLLMResponseInvalid},
		{name: "wrong key type", completion: `{"recommendations": 5}`, wantCode: errors.ErrCodeLLMResponseInvalid},
		{name: "empty", completion: "   ", wantCode: errors.ErrCodeLLMResponseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := new(MockChat)
			chat.On("Chat", mock.Anything, mock.Anything).Return(tt.completion, tt.chatErr)
			messenger := new(MockMessenger)

			h := NewHandler(DefaultConfig(), chat, messenger, logger.NewNoOpLogger())
			output, err := h.Execute(context.Background(), createTestInput())

			assert.Nil(t, output)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
			messenger.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_ForwardFailure(t *testing.T) {
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).Return(fullEvaluation, nil)
	messenger := new(MockMessenger)
	messenger.On("Send", mock.Anything, mock.Anything).
		Return(errors.NewForwardError(config.AgentDecision, stderrors.New("unavailable")))

	h := NewHandler(DefaultConfig(), chat, messenger, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), createTestInput())

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMessageForwardFailed))
}

// ==========================
// Input Decoding Tests
// ==========================

func TestDecodeInput(t *testing.T) {
	t.Run("flat payload", func(t *testing.T) {
		input, err := DecodeInput(`{"user_id":"u","summary":"s","alerts":["a"],"extracted":{"k":1}}`)
		require.NoError(t, err)
		assert.Equal(t, "u", input.UserID)
		assert.Equal(t, "s", input.Summary)
		assert.Equal(t, []interface{}{"a"}, input.Alerts)
		assert.Equal(t, map[string]interface{}{"k": float64(1)}, input.Extracted)
	})

	t.Run("nested input_data", func(t *testing.T) {
		input, err := DecodeInput(`{"input_data":{"user_id":"u","raw_text":"r"}}`)
		require.NoError(t, err)
		assert.Equal(t, "u", input.UserID)
		assert.Equal(t, "r", input.RawText)
	})

	t.Run("file chat forward", func(t *testing.T) {
		input, err := DecodeInput(`{"session_id":"s","summaries":{"response":"answer","citations":[]},"file_name":"a.pdf","type":"eas_output"}`)
		require.NoError(t, err)
		require.NotNil(t, input.Summaries)
		assert.Equal(t, "answer", input.Summaries.Response)
		assert.Equal(t, "a.pdf", input.FileName)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeInput(`{`)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})

	t.Run("schema violation", func(t *testing.T) {
		_, err := DecodeInput(`{"alerts":"not a list"}`)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})
}

// ==========================
// Job Command Tests
// ==========================

func TestHandler_Handle_JobCommands(t *testing.T) {
	const variables = `{"user_id":"u-1","session_id":"s-1","summary":"Fasting glucose 130 mg/dL."}`
	forwardErr := errors.NewForwardError(config.AgentDecision, stderrors.New("unavailable"))

	tests := []struct {
		name        string
		variables   string
		jobRetries  int32
		completion  string
		forwardErr  error
		wantCommand string
		wantCode    errors.ErrorCode
		wantRetries int32
	}{
		{name: "completes after forwarding", variables: variables, jobRetries: 3, completion: fullEvaluation, wantCommand: "complete"},
		{name: "forward failure is retried", variables: variables, jobRetries: 3, completion: fullEvaluation, forwardErr: forwardErr,
			wantCommand: "fail", wantCode: errors.ErrCodeMessageForwardFailed, wantRetries: 2},
		{name: "forward failure on last attempt throws", variables: variables, jobRetries: 1, completion: fullEvaluation, forwardErr: forwardErr,
			wantCommand: "throw", wantCode: errors.ErrCodeMessageForwardFailed},
		{name: "invalid completion retried once", variables: variables, jobRetries: 3, completion: "I think you are fine.",
			wantCommand: "fail", wantCode: errors.ErrCodeLLMResponseInvalid, wantRetries: 1},
		{name: "schema violation throws", variables: `{"alerts":"not a list"}`, jobRetries: 3,
			wantCommand: "throw", wantCode: errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := new(MockChat)
			chat.On("Chat", mock.Anything, mock.Anything).Return(tt.completion, nil)
			messenger := new(MockMessenger)
			messenger.On("Send", mock.Anything, mock.Anything).Return(tt.forwardErr)
			client := camundatest.NewJobClient()

			h := NewHandler(DefaultConfig(), chat, messenger, logger.NewTestLogger(t))
			h.Handle(client, entities.Job{ActivatedJob: &pb.ActivatedJob{
				Key: 21, Retries: tt.jobRetries, ProcessInstanceKey: 5, Variables: tt.variables,
			}})

			var vars map[string]interface{}
			switch tt.wantCommand {
			case "complete":
				require.Len(t, client.Completed(), 1)
				assert.Empty(t, client.Failed())
				assert.Empty(t, client.Thrown())
				vars = camundatest.Vars(client.Completed()[0].Variables)
				assert.Equal(t, StatusSuccess, vars["status"])
				assert.Equal(t, 1.0, vars["confidence_score"])
				return
			case "fail":
				failed := client.Failed()
				require.Len(t, failed, 1)
				assert.Empty(t, client.Thrown())
				assert.Equal(t, int64(21), failed[0].JobKey)
				assert.Equal(t, tt.wantRetries, failed[0].Retries)
				vars = camundatest.Vars(failed[0].Variables)
				assert.Equal(t, true, vars["retryable"])
			case "throw":
				thrown := client.Thrown()
				require.Len(t, thrown, 1)
				assert.Empty(t, client.Failed())
				assert.Equal(t, string(tt.wantCode), thrown[0].ErrorCode)
				vars = camundatest.Vars(thrown[0].Variables)
			}
			assert.Empty(t, client.Completed())
			assert.Equal(t, "error", vars["status"])
			assert.Equal(t, string(tt.wantCode), vars["errorCode"])
			assert.NotEmpty(t, vars["message"])
		})
	}
}
