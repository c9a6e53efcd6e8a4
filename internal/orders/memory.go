package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/cart"
	"github.com/ariefcatur/go-kiosk-orders/internal/inventory"
)

type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]Order
	audit  map[string][]Change
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: map[string]Order{}, audit: map[string][]Change{}}
}

func (r *MemoryRepository) Insert(_ context.Context, o Order, created Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	r.orders[o.ID] = cloneOrder(o)
	r.audit[o.ID] = append(r.audit[o.ID], created)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) List(_ context.Context, status Status, limit int) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Order{}
	for _, o := range r.orders {
		if status == "" || o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, ch Change) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[ch.OrderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.Status != ch.From {
		return Order{}, ErrConflict
	}
	o.Status = ch.To
	o.UpdatedAt = ch.At
	o.NeedsAttention = false
	if len(ch.Shortfalls) > 0 {
		o.Shortfalls = append([]inventory.Shortfall(nil), ch.Shortfalls...)
	}
	if ch.To == StatusFailed {
		o.LastError = ch.Reason
	}
	r.orders[o.ID] = o
	r.audit[o.ID] = append(r.audit[o.ID], ch)
	return cloneOrder(o), nil
}

func (r *MemoryRepository) FlagAttention(_ context.Context, id, reason string, at time.Time) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.NeedsAttention = true
	o.LastError = reason
	o.UpdatedAt = at
	r.orders[id] = o
	return cloneOrder(o), nil
}

func (r *MemoryRepository) Audit(_ context.Context, id string) ([]Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]Change(nil), r.audit[id]...), nil
}

func cloneOrder(o Order) Order {
	o.Items = append([]cart.Item(nil), o.Items...)
	o.Shortfalls = append([]inventory.Shortfall(nil), o.Shortfalls...)
	return o
}
