package events

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/segmentio/kafka-go"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header) error
}

// StatusPublisher sends every order transition to TopicOrderStatus.
type StatusPublisher struct {
	P        Publisher
	Producer string
}

func (s *StatusPublisher) OrderStatusChanged(_ context.Context, ev orders.StatusChanged) error {
	env, err := New(EventOrderStatusChanged, s.Producer, ev.OrderID, ev)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.P.Publish(TopicOrderStatus, PartitionKey(ev.OrderID), b)
}
