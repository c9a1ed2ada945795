package camunda

import (
	"context"
	"strconv"
	"time"

	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"
	"mediguard-agents/internal/common/observability"

	"github.com/google/uuid"
)

const DefaultMessageTTL = time.Hour

// Message is a payload addressed to another agent by its logical id.
type Message struct {
	Recipient          string
	Type               string
	SenderID           string
	SessionID          string
	UserID             string
	ProcessInstanceKey int64
	Payload            map[string]interface{}
}

// Envelope is a Message as published on the runtime.
type Envelope struct {
	Name           string
	CorrelationKey string
	MessageID      string
	TTL            time.Duration
	Variables      map[string]interface{}
}

// Messenger forwards payloads between agents.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher delivers envelopes to the runtime. *Client implements it.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// CorrelationKey picks the session id, then the user id, then the process
// instance key.
func (m Message) CorrelationKey() string {
	switch {
	case m.SessionID != "":
		return m.SessionID
	case m.UserID != "":
		return m.UserID
	default:
		return strconv.FormatInt(m.ProcessInstanceKey, 10)
	}
}

// BuildEnvelope turns msg into the published form with a fresh message id.
func BuildEnvelope(msg Message, ttl time.Duration) Envelope {
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	vars := make(map[string]interface{}, len(msg.Payload)+2)
	for k, v := range msg.Payload {
		vars[k] = v
	}
	vars["type"] = msg.Type
	vars["sender_id"] = msg.SenderID

	return Envelope{
		Name:           msg.Recipient,
		CorrelationKey: msg.CorrelationKey(),
		MessageID:      uuid.NewString(),
		TTL:            ttl,
		Variables:      vars,
	}
}

// ZeebeMessenger publishes agent messages as Zeebe messages.
type ZeebeMessenger struct {
	publisher Publisher
	ttl       time.Duration
	obs       *observability.Observability
	logger    logger.Logger
}

func NewZeebeMessenger(publisher Publisher, ttl time.Duration, obs *observability.Observability, log logger.Logger) *ZeebeMessenger {
	return &ZeebeMessenger{
		publisher: publisher,
		ttl:       ttl,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "messenger"}),
	}
}

func (m *ZeebeMessenger) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return errors.NewValidationError("recipient", "message recipient is empty")
	}
	env := BuildEnvelope(msg, m.ttl)

	if err := m.publisher.Publish(ctx, env); err != nil {
		metrics.MessagesForwarded.WithLabelValues(msg.SenderID, msg.Recipient, metrics.OutcomeError).Inc()
		m.logger.Error("message forward failed", map[string]interface{}{
			"recipient":      msg.Recipient,
			"type":           msg.Type,
			"correlationKey": env.CorrelationKey,
			"error":          err.Error(),
		})
		return errors.NewForwardError(msg.Recipient, err)
	}

	metrics.MessagesForwarded.WithLabelValues(msg.SenderID, msg.Recipient, metrics.OutcomeSuccess).Inc()
	m.obs.RecordForward(ctx, msg.SenderID, msg.Recipient)
	m.logger.Info("message forwarded", map[string]interface{}{
		"recipient":      msg.Recipient,
		"type":           msg.Type,
		"messageId":      env.MessageID,
		"correlationKey": env.CorrelationKey,
	})
	return nil
}
