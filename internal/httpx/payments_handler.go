package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/checkout"
	"github.com/ariefcatur/go-kiosk-orders/internal/payment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payment.Callback, bool, error)
}

type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// PaymentsHandler receives the provider's completion callback.
type PaymentsHandler struct {
	Webhooks WebhookParser
	Dedup    Deduper // optional
	Checkout Checkout
	Log      *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/webhook", h.webhook)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}
	cb, ok, err := h.Webhooks.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warn("webhook rejected", zap.Error(err))
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if h.Dedup != nil {
		first, err := h.Dedup.First(ctx, cb.EventID)
		if err != nil {
			// dedup is an optimization; finalization is idempotent anyway
			log.Warn("webhook dedup unavailable", zap.String("event_id", cb.EventID), zap.Error(err))
		} else if !first {
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}

	rc, err := h.Checkout.HandlePaymentSucceeded(ctx, cb.OrderID, cb.SessionID)
	var short *checkout.InsufficientStockError
	switch {
	case err == nil, errors.As(err, &short):
		// a failed order is a final answer; the provider must not retry
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "order_id": rc.OrderID, "checkout_status": rc.Status})
	case errors.Is(err, checkout.ErrPaymentMismatch):
		log.Warn("payment callback ignored", zap.String("order_id", cb.OrderID), zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
	default:
		if h.Dedup != nil {
			if rerr := h.Dedup.Release(context.WithoutCancel(ctx), cb.EventID); rerr != nil {
				log.Warn("webhook dedup release failed", zap.String("event_id", cb.EventID), zap.Error(rerr))
			}
		}
		log.Error("payment callback not finalized", zap.String("order_id", cb.OrderID), zap.Error(err))
		writeError(w, err)
	}
}
