// Package events defines the envelopes and topics the kiosk core exchanges
// over Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOperatorNotification = "OperatorNotification"
	EventPaymentSucceeded     = "PaymentSucceeded"
)

const (
	TopicOrderStatus      = "kiosk.order.status"
	TopicOperatorNotify   = "kiosk.operator.notify"
	TopicPaymentSucceeded = "kiosk.payment.succeeded"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

type OperatorNotificationPayload struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	OrderID string   `json:"order_id"`
	UserID  string   `json:"user_id"`
	Tokens  []string `json:"fcm_tokens"`
}

// PaymentSucceededPayload is what a payment gateway bridge publishes once the
// provider reports a completed checkout session.
type PaymentSucceededPayload struct {
	OrderID         string `json:"order_id"`
	SessionID       string `json:"session_id,omitempty"`
	ProviderEventID string `json:"provider_event_id,omitempty"`
}
