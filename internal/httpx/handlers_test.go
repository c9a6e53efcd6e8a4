package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/checkout"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/ariefcatur/go-kiosk-orders/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct{}

func (stubSessions) CreateSession(_ context.Context, o orders.Order) (payment.Session, error) {
	return payment.Session{ID: "cs_1", URL: "https://pay.example/" + o.ID}, nil
}

type stubWebhooks struct {
	cb  payment.Callback
	ok  bool
	err error
}

func (s stubWebhooks) ParseWebhook([]byte, string) (payment.Callback, bool, error) {
	return s.cb, s.ok, s.err
}

type memDedup struct{ seen map[string]bool }

func (d *memDedup) First(_ context.Context, id string) (bool, error) {
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

type app struct {
	router  *chi.Mux
	stock   *inventory.MemoryStore
	machine *orders.Machine
	orch    *checkout.Orchestrator
}

func newApp(t *testing.T, webhooks WebhookParser) *app {
	t.Helper()
	carts := cart.NewMemoryStore()
	stock := inventory.NewMemoryStore(
		inventory.Product{ID: "A", Name: "Paracetamol", StockLevel: 10},
		inventory.Product{ID: "B", Name: "Vitamin C", StockLevel: 0},
	)
	machine := orders.NewMachine(orders.NewMemoryRepository(), orders.DefaultPricing(), nil, nil)
	orch := checkout.New(checkout.Deps{
		Carts:      carts,
		Orders:     machine,
		Reconciler: inventory.NewReconciler(stock, inventory.PolicyPartial, nil),
		Sessions:   stubSessions{},
		Backoff:    checkout.Backoff{Attempts: 1},
	})

	r := NewRouter(nil)
	(&CartsHandler{Carts: carts}).Register(r)
	(&OrdersHandler{Checkout: orch, Orders: machine, History: stock}).Register(r)
	(&PaymentsHandler{Webhooks: webhooks, Dedup: &memDedup{seen: map[string]bool{}}, Checkout: orch}).Register(r)
	return &app{router: r, stock: stock, machine: machine, orch: orch}
}

func (a *app) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	a := newApp(t, stubWebhooks{})
	rec := a.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCartRoutes(t *testing.T) {
	a := newApp(t, stubWebhooks{})

	rec := a.do(t, http.MethodGet, "/carts/u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"A","name":"Paracetamol","price":"100","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decode[cart.Cart](t, rec)
	require.Len(t, c.Items, 1)

	rec = a.do(t, http.MethodPut, "/carts/u1/items/A", `{"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPut, "/carts/u1/items/A", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[cart.Cart](t, rec).Items[0].Quantity)

	rec = a.do(t, http.MethodDelete, "/carts/u1/items/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodDelete, "/carts/u1/items/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cart.Cart](t, rec).Items)
}

func TestCartCommitAndClear(t *testing.T) {
	a := newApp(t, stubWebhooks{})
	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"A","name":"Paracetamol","price":"100","quantity":2}`)
	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"B","name":"Vitamin C","price":"50","quantity":1}`)

	rec := a.do(t, http.MethodPatch, "/carts/u1/items",
		`{"changes":[{"product_id":"A","op":"increase"},{"product_id":"A","op":"increase"},{"product_id":"B","op":"decrease"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decode[cart.Cart](t, rec)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, 1, c.Items[1].Quantity, "decrease floors at one")

	rec = a.do(t, http.MethodPatch, "/carts/u1/items", `{"changes":[{"product_id":"B","op":"remove"},{"product_id":"A","op":"set","quantity":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[cart.Cart](t, rec)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)

	rec = a.do(t, http.MethodPatch, "/carts/u1/items", `{"changes":[{"product_id":"A","op":"double"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPatch, "/carts/u1/items", `{"changes":[{"product_id":"A","op":"set","quantity":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodDelete, "/carts/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cart.Cart](t, rec).Items)

	rec = a.do(t, http.MethodDelete, "/carts/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutRoutes(t *testing.T) {
	a := newApp(t, stubWebhooks{})

	rec := a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"Cash"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"Card"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"A","name":"Paracetamol","price":"100","quantity":2}`)
	rec = a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"Cash"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rc := decode[checkout.Receipt](t, rec)
	assert.Equal(t, orders.StatusProcessing, rc.Status)

	rec = a.do(t, http.MethodGet, "/orders/"+rc.OrderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rc.OrderID, decode[orders.Order](t, rec).ID)

	rec = a.do(t, http.MethodGet, "/orders/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]map[string]any](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "Removed 2 units.", entries[0]["details"])
}

func TestCheckoutInsufficientStock(t *testing.T) {
	a := newApp(t, stubWebhooks{})
	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"B","name":"Vitamin C","price":"50","quantity":1}`)

	rec := a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"Cash"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	order := body["order"].(map[string]any)
	assert.Equal(t, "Failed", order["checkout_status"])
}

func TestAdminRoutes(t *testing.T) {
	a := newApp(t, stubWebhooks{})
	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"A","name":"Paracetamol","price":"100","quantity":1}`)
	rec := a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"E-wallet"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rc := decode[checkout.Receipt](t, rec)
	assert.Equal(t, orders.StatusPending, rc.Status)
	assert.NotEmpty(t, rc.PaymentURL)

	rec = a.do(t, http.MethodGet, "/admin/orders?status=Pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]orders.Order](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/admin/orders?status=Bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/admin/orders/"+rc.OrderID+"/reject", `{"reason":"customer left"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusFailed, decode[orders.Order](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/admin/orders/"+rc.OrderID+"/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusFailed, decode[checkout.Receipt](t, rec).Status)
}

func TestWebhook(t *testing.T) {
	wh := &stubWebhooks{ok: true}
	a := newApp(t, wh)
	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"A","name":"Paracetamol","price":"100","quantity":1}`)
	rec := a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"E-wallet"}`)
	rc := decode[checkout.Receipt](t, rec)
	wh.cb = payment.Callback{EventID: "evt_1", OrderID: rc.OrderID, SessionID: "cs_1"}

	rec = a.do(t, http.MethodPost, "/payments/webhook", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Processing", decode[map[string]any](t, rec)["checkout_status"])

	rec = a.do(t, http.MethodPost, "/payments/webhook", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["duplicate"])

	lvl, _ := a.stock.StockLevel("A")
	assert.Equal(t, 9, lvl)
}

func TestWebhookForeignSessionIgnored(t *testing.T) {
	wh := &stubWebhooks{ok: true}
	a := newApp(t, wh)
	a.do(t, http.MethodPost, "/carts/u1/items", `{"product_id":"A","name":"Paracetamol","price":"100","quantity":1}`)
	rec := a.do(t, http.MethodPost, "/checkout", `{"user_id":"u1","payment_method":"E-wallet"}`)
	rc := decode[checkout.Receipt](t, rec)
	wh.cb = payment.Callback{EventID: "evt_2", OrderID: rc.OrderID, SessionID: "cs_forged"}

	rec = a.do(t, http.MethodPost, "/payments/webhook", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["ignored"])

	o, err := a.machine.Get(context.Background(), rc.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
	lvl, _ := a.stock.StockLevel("A")
	assert.Equal(t, 10, lvl)
}

func TestWebhookBadSignature(t *testing.T) {
	a := newApp(t, stubWebhooks{err: payment.ErrSignature})
	rec := a.do(t, http.MethodPost, "/payments/webhook", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{cart.ErrNotFound, http.StatusNotFound},
		{orders.ErrNotFound, http.StatusNotFound},
		{cart.ErrInvalidQuantity, http.StatusBadRequest},
		{checkout.ErrEmptyCart, http.StatusUnprocessableEntity},
		{orders.ErrInvalidTransition, http.StatusConflict},
		{inventory.ErrUnavailable, http.StatusServiceUnavailable},
		{payment.ErrSession, http.StatusBadGateway},
		{checkout.ErrPaymentMismatch, http.StatusBadRequest},
		{&checkout.InsufficientStockError{OrderID: "o"}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, statusFor(c.err), c.err.Error())
	}
}
