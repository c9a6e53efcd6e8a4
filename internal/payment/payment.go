// Package payment talks to the hosted checkout provider. It only opens
// payment sessions and verifies the provider's completion callback.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrSession: the provider refused or failed to open a session.
	ErrSession = errors.New("payment session error")
	// ErrSignature: webhook payload failed verification.
	ErrSignature = errors.New("invalid webhook signature")
)

const (
	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Callback is a verified "payment completed" notification.
type Callback struct {
	EventID   string
	OrderID   string
	SessionID string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string // may contain {ORDER_ID}
	CancelURL     string
	Currency      string
}

type Stripe struct {
	sc  *client.API
	cfg StripeConfig
}

func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.Currency == "" {
		cfg.Currency = "php"
	}
	return &Stripe{sc: client.New(cfg.SecretKey, nil), cfg: cfg}
}

// CreateSession opens a hosted checkout for the order's grand total. The
// order id rides along as client reference so the callback can find it.
func (s *Stripe) CreateSession(ctx context.Context, o orders.Order) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(strings.ReplaceAll(s.cfg.SuccessURL, "{ORDER_ID}", o.ID)),
		CancelURL:         stripe.String(strings.ReplaceAll(s.cfg.CancelURL, "{ORDER_ID}", o.ID)),
		ClientReferenceID: stripe.String(o.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Kiosk order %s", o.ID)),
				},
				UnitAmount: stripe.Int64(MinorUnits(o.Totals.Total)),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("order_id", o.ID)
	params.AddMetadata("user_id", o.UserID)

	sess, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrSession, err)
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the signature and extracts the order of a paid
// checkout session. ok is false for event types the kiosk ignores and for
// completed sessions whose payment is still pending (delayed methods settle
// later with async_payment_succeeded).
func (s *Stripe) ParseWebhook(payload []byte, signature string) (cb Callback, ok bool, err error) {
	return parseWebhook(payload, signature, s.cfg.WebhookSecret)
}

func parseWebhook(payload []byte, signature, secret string) (Callback, bool, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Callback{}, false, fmt.Errorf("%w: %w", ErrSignature, err)
	}
	switch string(ev.Type) {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
	default:
		return Callback{}, false, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return Callback{}, false, fmt.Errorf("decode checkout session: %w", err)
	}
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
	default:
		return Callback{}, false, nil
	}
	orderID := sess.ClientReferenceID
	if orderID == "" {
		orderID = sess.Metadata["order_id"]
	}
	if orderID == "" {
		return Callback{}, false, fmt.Errorf("checkout session %s carries no order id", sess.ID)
	}
	return Callback{EventID: ev.ID, OrderID: orderID, SessionID: sess.ID}, true, nil
}
