package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoItems = errors.New("order needs at least one item")

const maxCASAttempts = 3

// Machine owns every change of checkout_status. Transitions follow validNext;
// asking for the status an order already has is a no-op.
type Machine struct {
	repo    Repository
	pricing Pricing
	sink    EventSink
	log     *zap.Logger
	now     func() time.Time
}

func NewMachine(repo Repository, pricing Pricing, sink EventSink, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{repo: repo, pricing: pricing, sink: sink, log: log, now: time.Now}
}

func (m *Machine) Pricing() Pricing { return m.pricing }

// New freezes the cart's items and prices them. The order is not stored.
func (m *Machine) New(c cart.Cart, method PaymentMethod) (Order, error) {
	if c.Empty() {
		return Order{}, ErrNoItems
	}
	now := m.now().UTC()
	items := c.Snapshot()
	return Order{
		ID:            NewOrderID(now, uuid.NewString()),
		UserID:        c.UserID,
		PaymentMethod: method,
		Items:         items,
		Totals:        m.pricing.Compute(items),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Create stores an order built by New in Pending.
func (m *Machine) Create(ctx context.Context, o Order) (Order, error) {
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: new order must be %s, got %s", ErrInvalidTransition, StatusPending, o.Status)
	}
	ch := Change{OrderID: o.ID, To: StatusPending, Reason: "created", At: o.CreatedAt}
	if err := m.repo.Insert(ctx, o, ch); err != nil {
		return Order{}, fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	m.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.String("total", o.Totals.Total.StringFixed(2)))
	m.emit(ctx, o, ch)
	return o, nil
}

func (m *Machine) Get(ctx context.Context, id string) (Order, error) {
	return m.repo.Get(ctx, id)
}

func (m *Machine) List(ctx context.Context, status Status, limit int) ([]Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return m.repo.List(ctx, status, limit)
}

func (m *Machine) Audit(ctx context.Context, id string) ([]Change, error) {
	return m.repo.Audit(ctx, id)
}

// Confirm records a successful reconciliation. Accepted shortfalls are kept
// on the order.
func (m *Machine) Confirm(ctx context.Context, id string, shortfalls []inventory.Shortfall) (Order, error) {
	return m.transition(ctx, id, StatusConfirmed, "stock reconciled", shortfalls)
}

func (m *Machine) Process(ctx context.Context, id string) (Order, error) {
	return m.transition(ctx, id, StatusProcessing, "cart cleared, operators notified", nil)
}

// Fail is terminal. shortfalls, if any, record why stock could not be taken.
func (m *Machine) Fail(ctx context.Context, id, reason string, shortfalls []inventory.Shortfall) (Order, error) {
	return m.transition(ctx, id, StatusFailed, reason, shortfalls)
}

// Reject is an administrative Fail.
func (m *Machine) Reject(ctx context.Context, id, reason string) (Order, error) {
	if reason == "" {
		reason = "unspecified"
	}
	return m.transition(ctx, id, StatusFailed, "rejected by operator: "+reason, nil)
}

// FlagAttention leaves the order in its status and marks it for an operator.
func (m *Machine) FlagAttention(ctx context.Context, id, reason string) (Order, error) {
	o, err := m.repo.FlagAttention(ctx, id, reason, m.now().UTC())
	if err != nil {
		return Order{}, err
	}
	m.log.Warn("order needs attention", zap.String("order_id", id), zap.String("reason", reason))
	// status is unchanged; subscribers still drop their cached copy
	m.emit(ctx, o, Change{OrderID: id, From: o.Status, To: o.Status, Reason: "needs attention: " + reason, At: o.UpdatedAt})
	return o, nil
}

func (m *Machine) transition(ctx context.Context, id string, to Status, reason string, short []inventory.Shortfall) (Order, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		o, err := m.repo.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if o.Status == to || o.Status.Passed(to) {
			return o, nil
		}
		if !CanTransition(o.Status, to) {
			return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}

		ch := Change{OrderID: id, From: o.Status, To: to, Reason: reason, At: m.now().UTC(), Shortfalls: short}
		updated, err := m.repo.UpdateStatus(ctx, ch)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Order{}, fmt.Errorf("update order %s to %s: %w", id, to, err)
		}
		m.log.Info("order status changed",
			zap.String("order_id", id),
			zap.String("from", string(ch.From)),
			zap.String("to", string(ch.To)),
			zap.String("reason", reason))
		m.emit(ctx, updated, ch)
		return updated, nil
	}
	return Order{}, fmt.Errorf("update order %s to %s: %w", id, to, ErrConflict)
}

func (m *Machine) emit(ctx context.Context, o Order, ch Change) {
	if m.sink == nil {
		return
	}
	ev := StatusChanged{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PaymentMethod: o.PaymentMethod,
		From:          ch.From,
		To:            ch.To,
		Reason:        ch.Reason,
		At:            ch.At,
	}
	if err := m.sink.OrderStatusChanged(ctx, ev); err != nil {
		m.log.Warn("publish status change failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
