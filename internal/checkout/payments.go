package checkout

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-kiosk-orders/internal/events"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type finalizer interface {
	HandlePaymentSucceeded(ctx context.Context, orderID, sessionID string) (Receipt, error)
}

// PaymentEvents consumes PaymentSucceeded envelopes bridged onto Kafka by the
// payment gateway.
type PaymentEvents struct {
	Checkout finalizer
	Dedup    Deduper // optional
	Log      *zap.Logger
}

// Handle returns an error only when the message should be retried.
func (p *PaymentEvents) Handle(ctx context.Context, m kafka.Message) error {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	env, err := events.Decode(m.Value)
	if err != nil {
		log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != events.EventPaymentSucceeded {
		return nil
	}
	pl, err := events.UnwrapPayload[events.PaymentSucceededPayload](env.Payload)
	if err != nil || pl.OrderID == "" {
		log.Error("drop malformed payment event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	if p.Dedup != nil {
		first, err := p.Dedup.First(ctx, env.EventID)
		if err != nil {
			log.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !first {
			log.Info("duplicate payment event", zap.String("event_id", env.EventID), zap.String("order_id", pl.OrderID))
			return nil
		}
	}

	_, err = p.Checkout.HandlePaymentSucceeded(ctx, pl.OrderID, pl.SessionID)
	var short *InsufficientStockError
	switch {
	case err == nil, errors.As(err, &short), errors.Is(err, orders.ErrNotFound), errors.Is(err, ErrPaymentMismatch):
		if err != nil {
			log.Warn("payment event settled without fulfillment", zap.String("order_id", pl.OrderID), zap.Error(err))
		}
		return nil
	default:
		if p.Dedup != nil {
			if rerr := p.Dedup.Release(context.WithoutCancel(ctx), env.EventID); rerr != nil {
				log.Warn("dedup release failed", zap.String("event_id", env.EventID), zap.Error(rerr))
			}
		}
		return err
	}
}
