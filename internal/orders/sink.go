package orders

import (
	"context"
	"errors"
	"time"
)

// StatusChanged is emitted after every committed transition, including the
// initial Pending.
type StatusChanged struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	From          Status        `json:"from,omitempty"`
	To            Status        `json:"to"`
	Reason        string        `json:"reason,omitempty"`
	At            time.Time     `json:"at"`
}

type EventSink interface {
	OrderStatusChanged(ctx context.Context, ev StatusChanged) error
}

var ErrSinkFull = errors.New("event channel full")

// ChanSink delivers events to an in-process subscriber. It never blocks; a
// full channel drops the event and reports ErrSinkFull.
type ChanSink chan StatusChanged

func (c ChanSink) OrderStatusChanged(_ context.Context, ev StatusChanged) error {
	select {
	case c <- ev:
		return nil
	default:
		return ErrSinkFull
	}
}

// MultiSink fans one event out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) OrderStatusChanged(ctx context.Context, ev StatusChanged) error {
	var errs []error
	for _, s := range m {
		if err := s.OrderStatusChanged(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
