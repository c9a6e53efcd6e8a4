package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/checkout"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/ariefcatur/go-kiosk-orders/internal/payment"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var short *checkout.InsufficientStockError
	switch {
	case errors.As(err, &short):
		return http.StatusConflict
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, cart.ErrItemNotFound), errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, inventory.ErrInvalidLineItem), errors.Is(err, checkout.ErrUnsupportedPayment),
		errors.Is(err, payment.ErrSignature), errors.Is(err, checkout.ErrPaymentMismatch):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, payment.ErrSession):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
