package cart

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]Cart
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]Cart{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return Cart{}, ErrNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) Open(_ context.Context, userID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = Cart{UserID: userID, Items: []Item{}, UpdatedAt: s.now().UTC()}
		s.carts[userID] = c
	}
	return clone(c), nil
}

func (s *MemoryStore) AddItem(_ context.Context, userID string, item Item) (Cart, error) {
	return s.mutate(userID, func(c *Cart) error { return addItem(c, item) })
}

func (s *MemoryStore) RemoveItem(_ context.Context, userID, productID string) (Cart, error) {
	return s.mutate(userID, func(c *Cart) error { return removeItem(c, productID) })
}

func (s *MemoryStore) SetQuantity(_ context.Context, userID, productID string, qty int) (Cart, error) {
	return s.mutate(userID, func(c *Cart) error { return setQuantity(c, productID, qty) })
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	_, err := s.mutate(userID, func(c *Cart) error {
		c.Items = []Item{}
		return nil
	})
	return err
}

func (s *MemoryStore) ClearForOrder(_ context.Context, userID, orderID string) (bool, error) {
	cleared := false
	_, err := s.mutate(userID, func(c *Cart) error {
		if c.LastClearedOrder == orderID {
			return nil
		}
		c.Items = []Item{}
		c.LastClearedOrder = orderID
		cleared = true
		return nil
	})
	return cleared, err
}

func (s *MemoryStore) mutate(userID string, fn func(*Cart) error) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return Cart{}, ErrNotFound
	}
	c = clone(c)
	if err := fn(&c); err != nil {
		return Cart{}, err
	}
	c.UpdatedAt = s.now().UTC()
	s.carts[userID] = c
	return clone(c), nil
}

func clone(c Cart) Cart {
	c.Items = c.Snapshot()
	return c
}
