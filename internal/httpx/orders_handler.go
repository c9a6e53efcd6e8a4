package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/checkout"
	"github.com/ariefcatur/go-kiosk-orders/internal/history"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Checkout interface {
	InitiateCheckout(ctx context.Context, userID string, method orders.PaymentMethod) (checkout.Receipt, error)
	HandlePaymentSucceeded(ctx context.Context, orderID, sessionID string) (checkout.Receipt, error)
	Resume(ctx context.Context, orderID string) (checkout.Receipt, error)
}

type OrderBook interface {
	Get(ctx context.Context, id string) (orders.Order, error)
	List(ctx context.Context, status orders.Status, limit int) ([]orders.Order, error)
	Reject(ctx context.Context, id, reason string) (orders.Order, error)
}

type OrderCache interface {
	Get(ctx context.Context, id string) (orders.Order, bool, error)
	Set(ctx context.Context, o orders.Order) error
}

type OrdersHandler struct {
	Checkout Checkout
	Orders   OrderBook
	Cache    OrderCache // optional
	History  history.Reader
	Log      *zap.Logger
}

type checkoutReq struct {
	UserID        string `json:"user_id"`
	PaymentMethod string `json:"payment_method"`
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/admin/orders", h.listOrders)
	r.Post("/admin/orders/{id}/reject", h.reject)
	r.Post("/admin/orders/{id}/retry", h.retry)
	r.Get("/history", h.listHistory)
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}
	method, err := orders.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rc, err := h.Checkout.InitiateCheckout(ctx, req.UserID, method)
	h.writeReceipt(w, rc, err, http.StatusCreated)
}

// writeReceipt includes the receipt alongside the error when an order exists.
func (h *OrdersHandler) writeReceipt(w http.ResponseWriter, rc checkout.Receipt, err error, okCode int) {
	if err == nil {
		writeJSON(w, okCode, rc)
		return
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError && !errors.Is(err, inventory.ErrUnavailable) {
		h.logger().Error("checkout failed", zap.String("order_id", rc.OrderID), zap.Error(err))
	}
	body := map[string]any{"error": err.Error()}
	if rc.OrderID != "" {
		body["order"] = rc
	}
	writeJSON(w, code, body)
}

// getOrder reads through the cache; the DB stays the source of truth.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if o, ok, err := h.Cache.Get(ctx, id); err == nil && ok {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, o); err != nil {
			h.logger().Debug("order cache set failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.List(ctx, orders.Status(r.URL.Query().Get("status")), queryInt(r, "limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Reject(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) retry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rc, err := h.Checkout.Resume(ctx, chi.URLParam(r, "id"))
	h.writeReceipt(w, rc, err, http.StatusOK)
}

func (h *OrdersHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.History.List(ctx, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
