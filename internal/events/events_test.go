package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	topic string
	key   []byte
	value []byte
}

type fakePublisher struct{ got []captured }

func (f *fakePublisher) Publish(topic string, key, value []byte, _ ...kafka.Header) error {
	f.got = append(f.got, captured{topic, key, value})
	return nil
}

func TestStatusPublisher(t *testing.T) {
	pub := &fakePublisher{}
	s := &StatusPublisher{P: pub, Producer: "kiosk-api"}

	ev := orders.StatusChanged{
		OrderID: "order-1", UserID: "u1",
		From: orders.StatusPending, To: orders.StatusConfirmed,
		At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.OrderStatusChanged(context.Background(), ev))
	require.Len(t, pub.got, 1)

	msg := pub.got[0]
	assert.Equal(t, TopicOrderStatus, msg.topic)
	assert.Equal(t, []byte("order-1"), msg.key)

	env, err := Decode(msg.value)
	require.NoError(t, err)
	assert.Equal(t, EventOrderStatusChanged, env.EventType)
	assert.Equal(t, "kiosk-api", env.Producer)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	got, err := UnwrapPayload[orders.StatusChanged](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = UnwrapPayload[PaymentSucceededPayload](json.RawMessage(`{"order_id": 5}`))
	assert.Error(t, err)
}
