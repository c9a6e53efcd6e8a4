package inventory

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/go-kiosk-orders/internal/history"
)

var errInjected = errors.New("injected commit failure")

// MemoryStore is an in-process Store. Units of work run one at a time and
// stage their writes until fn returns nil.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]Product
	results  map[string]Result
	history  []history.Entry
	failures int
}

func NewMemoryStore(products ...Product) *MemoryStore {
	s := &MemoryStore{products: map[string]Product{}, results: map[string]Result{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// FailCommits makes the next n units of work fail after fn ran, discarding
// everything they staged.
func (s *MemoryStore) FailCommits(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

func (s *MemoryStore) Put(p Product) {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) StockLevel(productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	return p.StockLevel, ok
}

// List returns history newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	out := []history.Entry{}
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s, stock: map[string]int{}}
	if err := fn(tx); err != nil {
		return err
	}
	if s.failures > 0 {
		s.failures--
		return errInjected
	}
	for id, lvl := range tx.stock {
		p := s.products[id]
		p.StockLevel = lvl
		s.products[id] = p
	}
	s.history = append(s.history, tx.history...)
	if tx.result != nil {
		s.results[tx.result.OrderID] = *tx.result
	}
	return nil
}

type memTx struct {
	s       *MemoryStore
	stock   map[string]int
	history []history.Entry
	result  *Result
}

func (t *memTx) Lookup(_ context.Context, orderID string) (Result, bool, error) {
	res, ok := t.s.results[orderID]
	return res, ok, nil
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) SetStockLevel(_ context.Context, productID string, level int) error {
	if _, ok := t.s.products[productID]; !ok {
		return errors.New("unknown product " + productID)
	}
	if level < 0 {
		return errors.New("stock level below zero for " + productID)
	}
	t.stock[productID] = level
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, e history.Entry) error {
	t.history = append(t.history, e)
	return nil
}

func (t *memTx) Record(_ context.Context, res Result) error {
	t.result = &res
	return nil
}
