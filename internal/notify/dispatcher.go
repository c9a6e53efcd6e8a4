// Package notify tells operators about new orders. Delivery is best effort:
// failures are logged and never reach the checkout path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"go.uber.org/zap"
)

var (
	// ErrDelivery wraps every sender failure in the logs.
	ErrDelivery  = errors.New("notification delivery failed")
	ErrNoTargets = errors.New("no operator devices registered")
)

const (
	titleNewOrder   = "New Order"
	messageNewOrder = "A new order has been placed."
)

type Notification struct {
	Title   string
	Message string
	OrderID string
	UserID  string
	Tokens  []string
}

type Targets interface {
	Tokens(ctx context.Context, operatorID string) ([]string, error)
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher queues orders and delivers from a single worker goroutine.
type Dispatcher struct {
	targets    Targets
	operatorID string
	senders    []Sender
	log        *zap.Logger
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	inbox  chan orders.Order
	done   chan struct{}
}

func NewDispatcher(targets Targets, operatorID string, senders []Sender, buf int, log *zap.Logger) *Dispatcher {
	if buf <= 0 {
		buf = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		targets:    targets,
		operatorID: operatorID,
		senders:    senders,
		log:        log,
		timeout:    10 * time.Second,
		inbox:      make(chan orders.Order, buf),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

// NotifyOperators enqueues the order and returns at once. A full queue drops
// the notification; the order itself is durable and visible to operators.
func (d *Dispatcher) NotifyOperators(o orders.Order) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, notification dropped", zap.String("order_id", o.ID))
		return
	}
	select {
	case d.inbox <- o:
	default:
		d.log.Warn("notification queue full, dropped", zap.String("order_id", o.ID))
	}
}

// Close stops intake and waits until queued notifications are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.inbox)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for o := range d.inbox {
		d.deliver(o)
	}
}

func (d *Dispatcher) deliver(o orders.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	n := Notification{Title: titleNewOrder, Message: messageNewOrder, OrderID: o.ID, UserID: o.UserID}
	if d.targets != nil {
		tokens, err := d.targets.Tokens(ctx, d.operatorID)
		if err != nil {
			d.log.Warn("operator token lookup failed", zap.String("order_id", o.ID), zap.Error(err))
		}
		n.Tokens = tokens
	}

	for _, s := range d.senders {
		if err := s.Send(ctx, n); err != nil {
			d.log.Warn("operator notification failed",
				zap.String("order_id", o.ID),
				zap.String("sender", fmt.Sprintf("%T", s)),
				zap.Error(fmt.Errorf("%w: %w", ErrDelivery, err)))
			continue
		}
		d.log.Debug("operator notified", zap.String("order_id", o.ID), zap.String("sender", fmt.Sprintf("%T", s)))
	}
}
