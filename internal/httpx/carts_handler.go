package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartsHandler struct {
	Carts cart.Store
}

type addItemReq struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Dosage    string          `json:"dosage"`
	ImageURL  string          `json:"image_url"`
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

// cartChange is one on-screen edit queued by the kiosk: increase, decrease,
// set or remove.
type cartChange struct {
	ProductID string `json:"product_id"`
	Op        string `json:"op"`
	Quantity  int    `json:"quantity,omitempty"`
}

type commitReq struct {
	Changes []cartChange `json:"changes"`
}

func (h *CartsHandler) Register(r chi.Router) {
	r.Get("/carts/{userID}", h.get)
	r.Post("/carts/{userID}", h.open)
	r.Delete("/carts/{userID}", h.clear)
	r.Patch("/carts/{userID}/items", h.commit)
	r.Post("/carts/{userID}/items", h.addItem)
	r.Put("/carts/{userID}/items/{productID}", h.setQuantity)
	r.Delete("/carts/{userID}/items/{productID}", h.removeItem)
}

func (h *CartsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.Get(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartsHandler) open(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.Open(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// addItem opens the cart on first use, the way the kiosk adds its first item.
func (h *CartsHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	userID := chi.URLParam(r, "userID")
	item := cart.Item{
		ProductID: req.ProductID,
		Name:      req.Name,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Dosage:    req.Dosage,
		ImageURL:  req.ImageURL,
	}
	if err := item.Validate(); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Carts.Open(ctx, userID); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Carts.AddItem(ctx, userID, item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartsHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.SetQuantity(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartsHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.RemoveItem(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartsHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	userID := chi.URLParam(r, "userID")
	if err := h.Carts.Clear(ctx, userID); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Carts.Get(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// commit replays a batch of on-screen edits onto a draft of the stored cart
// and saves it in one go.
func (h *CartsHandler) commit(w http.ResponseWriter, r *http.Request) {
	var req commitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	stored, err := h.Carts.Get(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	d := cart.NewDraft(stored)
	for _, ch := range req.Changes {
		switch ch.Op {
		case "increase":
			err = d.Increase(ch.ProductID)
		case "decrease":
			err = d.Decrease(ch.ProductID)
		case "set":
			err = d.Set(ch.ProductID, ch.Quantity)
		case "remove":
			err = d.Remove(ch.ProductID)
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown op " + ch.Op})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
	}
	c, err := d.Commit(ctx, h.Carts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
