package decision

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"mediguard-agents/internal/common/camunda/camundatest"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) Record(ctx context.Context, r Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// ==========================
// Test Helpers
// ==========================

func score(v float64) *float64 { return &v }

func createTestInput(confidence float64) *Input {
	return &Input{
		ConfidenceScore: score(confidence),
		Evaluation:      map[string]interface{}{"recommendations": []interface{}{"rest"}},
		Alerts:          []interface{}{"glucose above range"},
		UserID:          "u-1",
		SessionID:       "s-1",
	}
}

// ==========================
// Decision Tests
// ==========================

func TestHandler_Execute_Thresholds(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float64
		wantTier    Tier
		wantMessage string
	}{
		{name: "perfect", confidence: 1.0, wantTier: TierHigh, wantMessage: HighMessage},
		{name: "high boundary", confidence: 0.85, wantTier: TierHigh, wantMessage: HighMessage},
		{name: "just below high", confidence: 0.8499, wantTier: TierMedium, wantMessage: MediumMessage},
		{name: "medium boundary", confidence: 0.5, wantTier: TierMedium, wantMessage: MediumMessage},
		{name: "just below medium", confidence: 0.49, wantTier: TierLow, wantMessage: LowMessage},
		{name: "zero", confidence: 0, wantTier: TierLow, wantMessage: LowMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(DefaultConfig(), nil, logger.NewTestLogger(t))

			output, err := h.Execute(context.Background(), createTestInput(tt.confidence))

			require.NoError(t, err)
			assert.Equal(t, StatusSuccess, output.Status)
			assert.Equal(t, tt.wantTier, output.Tier)
			assert.Equal(t, tt.wantMessage, output.Message)
			assert.Equal(t, tt.confidence, output.ConfidenceScore)
			assert.Equal(t, []interface{}{"glucose above range"}, output.Alerts)
			assert.Equal(t, Disclaimer, output.Disclaimer)
		})
	}
}

func TestHandler_Execute_Messages(t *testing.T) {
	assert.Equal(t, "✅ High confidence. Share the PDF summary with your doctor.", HighMessage)
	assert.Equal(t, "⚠️ Medium confidence. Please upload more data for better results.", MediumMessage)
	assert.Equal(t, "❌ Low confidence. Not enough data. Please consult your healthcare provider.", LowMessage)
	assert.Equal(t, "This tool does not provide medical advice. Always consult a licensed medical professional.", Disclaimer)
}

func TestHandler_Execute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		input     *Input
		wantField string
	}{
		{
			name:      "missing confidence score",
			input:     &Input{Evaluation: map[string]interface{}{}},
			wantField: "confidence_score",
		},
		{
			name:      "score above range",
			input:     &Input{ConfidenceScore: score(1.2), Evaluation: map[string]interface{}{}},
			wantField: "confidence_score",
		},
		{
			name:      "negative score",
			input:     &Input{ConfidenceScore: score(-0.1), Evaluation: map[string]interface{}{}},
			wantField: "confidence_score",
		},
		{
			name:      "missing evaluation",
			input:     &Input{ConfidenceScore: score(0.9)},
			wantField: "evaluation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(DefaultConfig(), nil, logger.NewNoOpLogger())

			output, err := h.Execute(context.Background(), tt.input)

			assert.Nil(t, output)
			require.Error(t, err)
			var stdErr *errors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
			assert.Equal(t, tt.wantField, stdErr.Metadata["field"])
		})
	}
}

func TestHandler_Execute_EvaluationResultAlias(t *testing.T) {
	h := NewHandler(DefaultConfig(), nil, logger.NewNoOpLogger())
	evaluation := map[string]interface{}{"concerns": []interface{}{}}

	output, err := h.Execute(context.Background(), &Input{ConfidenceScore: score(0.5), EvaluationResult: evaluation})

	require.NoError(t, err)
	assert.Equal(t, evaluation, output.Evaluation)
	assert.Equal(t, []interface{}{}, output.Alerts)
}

// ==========================
// Audit Tests
// ==========================

func TestHandler_Execute_RecordsAudit(t *testing.T) {
	audit := new(MockAuditStore)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	audit.On("Record", mock.Anything, Record{
		UserID:          "u-1",
		SessionID:       "s-1",
		Tier:            TierHigh,
		ConfidenceScore: 1.0,
		Message:         HighMessage,
		DecidedAt:       fixed,
	}).Return(nil).Once()

	h := NewHandler(DefaultConfig(), audit, logger.NewTestLogger(t))
	h.now = func() time.Time { return fixed }

	_, err := h.Execute(context.Background(), createTestInput(1.0))

	require.NoError(t, err)
	audit.AssertExpectations(t)
}

func TestHandler_Execute_AuditFailureDoesNotFail(t *testing.T) {
	audit := new(MockAuditStore)
	audit.On("Record", mock.Anything, mock.Anything).Return(stderrors.New("db down"))

	h := NewHandler(DefaultConfig(), audit, logger.NewTestLogger(t))
	output, err := h.Execute(context.Background(), createTestInput(0.3))

	require.NoError(t, err)
	assert.Equal(t, TierLow, output.Tier)
}

func TestPostgresAuditStore(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	decidedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sqlMock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS decision_audit")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectExec(regexp.QuoteMeta(insertAuditRecord)).
		WithArgs("u-1", "s-1", "medium", 0.6, MediumMessage, decidedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	sqlMock.ExpectExec(regexp.QuoteMeta(insertAuditRecord)).
		WillReturnError(stderrors.New("connection reset"))

	store := NewPostgresAuditStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Record(ctx, Record{
		UserID:          "u-1",
		SessionID:       "s-1",
		Tier:            TierMedium,
		ConfidenceScore: 0.6,
		Message:         MediumMessage,
		DecidedAt:       decidedAt,
	}))
	err = store.Record(ctx, Record{Tier: TierLow, DecidedAt: decidedAt})
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

// ==========================
// Input Decoding Tests
// ==========================

func TestDecodeInput(t *testing.T) {
	t.Run("flat payload", func(t *testing.T) {
		input, err := DecodeInput(`{"confidence_score":0.85,"evaluation":{"concerns":[]},"alerts":["a"],"user_id":"u"}`)
		require.NoError(t, err)
		require.NotNil(t, input.ConfidenceScore)
		assert.Equal(t, 0.85, *input.ConfidenceScore)
		assert.Equal(t, []interface{}{"a"}, input.Alerts)
	})

	t.Run("nested meval_output", func(t *testing.T) {
		input, err := DecodeInput(`{"meval_output":{"confidence_score":1,"evaluation_result":{"recommendations":["x"]}}}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, *input.ConfidenceScore)
		assert.NotNil(t, input.EvaluationResult)
	})

	t.Run("missing score decodes to nil", func(t *testing.T) {
		input, err := DecodeInput(`{"evaluation":{}}`)
		require.NoError(t, err)
		assert.Nil(t, input.ConfidenceScore)
	})

	t.Run("score of wrong type", func(t *testing.T) {
		_, err := DecodeInput(`{"confidence_score":"high","evaluation":{}}`)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeInput(`not json`)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})
}

// ==========================
// Job Command Tests
// ==========================

func TestHandler_Handle_JobCommands(t *testing.T) {
	tests := []struct {
		name          string
		variables     string
		wantCompleted bool
		wantCode      string
		wantField     string
	}{
		{
			name:          "completes with the decision",
			variables:     `{"confidence_score":0.9,"evaluation":{"summary":"ok"},"alerts":[]}`,
			wantCompleted: true,
		},
		{
			name:          "nested forward completes",
			variables:     `{"meval_output":{"confidence_score":0.5,"evaluation_result":{"summary":"ok"}}}`,
			wantCompleted: true,
		},
		{
			name:      "missing confidence score throws",
			variables: `{"evaluation":{"summary":"ok"}}`,
			wantCode:  string(errors.ErrCodeValidationFailed),
			wantField: "confidence_score",
		},
		{
			name:      "unparseable variables throw",
			variables: `{not json`,
			wantCode:  string(errors.ErrCodeValidationFailed),
			wantField: "variables",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := camundatest.NewJobClient()
			h := NewHandler(DefaultConfig(), nil, logger.NewTestLogger(t))

			h.Handle(client, entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 11, Retries: 3, Variables: tt.variables}})

			assert.Empty(t, client.Failed())
			if tt.wantCompleted {
				require.Len(t, client.Completed(), 1)
				assert.Empty(t, client.Thrown())
				vars := camundatest.Vars(client.Completed()[0].Variables)
				assert.Equal(t, StatusSuccess, vars["status"])
				assert.Contains(t, vars, "tier")
				return
			}

			assert.Empty(t, client.Completed())
			thrown := client.Thrown()
			require.Len(t, thrown, 1)
			assert.Equal(t, int64(11), thrown[0].JobKey)
			assert.Equal(t, tt.wantCode, thrown[0].ErrorCode)
			vars := camundatest.Vars(thrown[0].Variables)
			assert.Equal(t, "error", vars["status"])
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, false, vars["retryable"])
			assert.Equal(t, tt.wantField, vars["field"])
			assert.NotEmpty(t, vars["message"])
		})
	}
}
