// Package checkout drives a cart through payment-method branching into an
// order, and finalizes orders once payment is acknowledged.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/ariefcatur/go-kiosk-orders/internal/payment"
	"go.uber.org/zap"
)

type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	ClearForOrder(ctx context.Context, userID, orderID string) (bool, error)
}

type Orders interface {
	New(c cart.Cart, method orders.PaymentMethod) (orders.Order, error)
	Create(ctx context.Context, o orders.Order) (orders.Order, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	Confirm(ctx context.Context, id string, shortfalls []inventory.Shortfall) (orders.Order, error)
	Process(ctx context.Context, id string) (orders.Order, error)
	Fail(ctx context.Context, id, reason string, shortfalls []inventory.Shortfall) (orders.Order, error)
	FlagAttention(ctx context.Context, id, reason string) (orders.Order, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, orderID string, items []inventory.LineItem) (inventory.Result, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, o orders.Order) (payment.Session, error)
}

type Notifier interface {
	NotifyOperators(o orders.Order)
}

type Deps struct {
	Carts      Carts
	Orders     Orders
	Reconciler Reconciler
	Sessions   Sessions // nil disables E-wallet
	Notifier   Notifier
	Backoff    Backoff
	Log        *zap.Logger
}

type Receipt struct {
	OrderID       string                `json:"order_id"`
	Status        orders.Status         `json:"checkout_status"`
	PaymentMethod orders.PaymentMethod  `json:"payment_method"`
	Totals        orders.Totals         `json:"totals"`
	SessionID     string                `json:"payment_session_id,omitempty"`
	PaymentURL    string                `json:"payment_url,omitempty"`
	Shortfalls    []inventory.Shortfall `json:"shortfalls,omitempty"`
}

func receiptFor(o orders.Order) Receipt {
	return Receipt{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		Totals:        o.Totals,
		SessionID:     o.PaymentSessionID,
		Shortfalls:    o.Shortfalls,
	}
}

type Orchestrator struct {
	carts    Carts
	orders   Orders
	rec      Reconciler
	sessions Sessions
	notifier Notifier
	backoff  Backoff
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(d Deps) *Orchestrator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Backoff.Attempts <= 0 {
		d.Backoff.Attempts = 1
	}
	return &Orchestrator{
		carts:    d.Carts,
		orders:   d.Orders,
		rec:      d.Reconciler,
		sessions: d.Sessions,
		notifier: d.Notifier,
		backoff:  d.Backoff,
		log:      d.Log,
		sleep:    sleepCtx,
	}
}

// InitiateCheckout freezes the user's cart into an order. Cash orders are
// reconciled and finalized before returning. E-wallet orders return Pending
// with the hosted payment URL and wait for HandlePaymentSucceeded.
func (c *Orchestrator) InitiateCheckout(ctx context.Context, userID string, method orders.PaymentMethod) (Receipt, error) {
	cr, err := c.carts.Get(ctx, userID)
	if errors.Is(err, cart.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%w: no cart for %s", ErrEmptyCart, userID)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("load cart %s: %w", userID, err)
	}
	if cr.Empty() {
		return Receipt{}, ErrEmptyCart
	}

	o, err := c.orders.New(cr, method)
	if err != nil {
		return Receipt{}, err
	}

	switch method {
	case orders.PaymentCash:
		o, err = c.orders.Create(ctx, o)
		if err != nil {
			return Receipt{}, err
		}
		return c.finalize(ctx, o)

	case orders.PaymentEWallet:
		if c.sessions == nil {
			return Receipt{}, fmt.Errorf("%w: e-wallet not configured", payment.ErrSession)
		}
		// nothing is stored until the provider accepted the session
		sess, err := c.sessions.CreateSession(ctx, o)
		if err != nil {
			c.log.Warn("payment session failed", zap.String("user_id", userID), zap.Error(err))
			if !errors.Is(err, payment.ErrSession) {
				err = fmt.Errorf("%w: %w", payment.ErrSession, err)
			}
			return Receipt{}, err
		}
		o.PaymentSessionID = sess.ID
		o, err = c.orders.Create(ctx, o)
		if err != nil {
			return Receipt{}, err
		}
		r := receiptFor(o)
		r.PaymentURL = sess.URL
		return r, nil
	}
	return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedPayment, method)
}

// HandlePaymentSucceeded resumes an e-wallet order from its stored snapshot.
// A non-empty sessionID must be the session the order was opened with.
// Calling it again for the same order is a no-op.
func (c *Orchestrator) HandlePaymentSucceeded(ctx context.Context, orderID, sessionID string) (Receipt, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}
	if o.PaymentMethod != orders.PaymentEWallet {
		return receiptFor(o), fmt.Errorf("%w: order %s is paid by %s", ErrPaymentMismatch, orderID, o.PaymentMethod)
	}
	if sessionID != "" && sessionID != o.PaymentSessionID {
		c.log.Warn("payment session mismatch",
			zap.String("order_id", orderID),
			zap.String("session_id", sessionID),
			zap.String("expected", o.PaymentSessionID))
		return receiptFor(o), fmt.Errorf("%w: session %s on order %s", ErrPaymentMismatch, sessionID, orderID)
	}
	c.log.Info("payment acknowledged", zap.String("order_id", orderID), zap.String("session_id", sessionID))
	return c.finalize(ctx, o)
}

// Resume retries finalization of an order an operator picked from the
// attention list.
func (c *Orchestrator) Resume(ctx context.Context, orderID string) (Receipt, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}
	return c.finalize(ctx, o)
}

// finalize walks the order forward from wherever it stopped:
// Pending -> reconcile -> Confirmed -> clear cart, notify -> Processing.
func (c *Orchestrator) finalize(ctx context.Context, o orders.Order) (Receipt, error) {
	log := c.log.With(zap.String("order_id", o.ID))

	if o.Status == orders.StatusPending {
		res, err := c.reconcile(ctx, o)
		if err != nil {
			if errors.Is(err, inventory.ErrUnavailable) {
				return c.stuck(ctx, o, fmt.Errorf("order %s: %w", o.ID, err))
			}
			return receiptFor(o), err
		}

		if res.Outcome() == inventory.OutcomeRejected {
			failed, err := c.orders.Fail(ctx, o.ID, "insufficient stock", res.Shortfalls)
			if err != nil {
				return receiptFor(o), err
			}
			return receiptFor(failed), &InsufficientStockError{OrderID: o.ID, Shortfalls: res.Shortfalls}
		}

		confirmed, err := c.orders.Confirm(ctx, o.ID, res.Shortfalls)
		if err != nil {
			return receiptFor(o), err
		}
		o = confirmed
		if len(res.Shortfalls) > 0 {
			log.Warn("order confirmed with shortfalls", zap.Strings("short", res.ShortProductIDs()))
		}
	}

	if o.Status == orders.StatusConfirmed {
		if _, err := c.carts.ClearForOrder(ctx, o.UserID, o.ID); err != nil && !errors.Is(err, cart.ErrNotFound) {
			// stays Confirmed; Resume picks it up again
			return c.stuck(ctx, o, fmt.Errorf("clear cart for %s: %w", o.ID, err))
		}
		if c.notifier != nil {
			c.notifier.NotifyOperators(o)
		}
		processed, err := c.orders.Process(ctx, o.ID)
		if err != nil {
			return c.stuck(ctx, o, err)
		}
		o = processed
	}

	return receiptFor(o), nil
}

// stuck flags an order that could not move forward so it shows up on the
// attention list, then hands err back to the caller.
func (c *Orchestrator) stuck(ctx context.Context, o orders.Order, err error) (Receipt, error) {
	if ctx.Err() != nil {
		return receiptFor(o), err
	}
	if flagged, ferr := c.orders.FlagAttention(ctx, o.ID, err.Error()); ferr == nil {
		o = flagged
	} else {
		c.log.Error("flag order failed", zap.String("order_id", o.ID), zap.Error(ferr))
	}
	return receiptFor(o), err
}

func (c *Orchestrator) reconcile(ctx context.Context, o orders.Order) (inventory.Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.backoff.Attempts; attempt++ {
		res, err := c.rec.Reconcile(ctx, o.ID, o.LineItems())
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, inventory.ErrUnavailable) {
			return inventory.Result{}, err
		}
		lastErr = err
		c.log.Warn("reconciliation attempt failed",
			zap.String("order_id", o.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt == c.backoff.Attempts-1 {
			break
		}
		if err := c.sleep(ctx, c.backoff.Delay(attempt)); err != nil {
			return inventory.Result{}, err
		}
	}
	return inventory.Result{}, lastErr
}
