package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-kiosk-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

// OrderCache is a read-through cache for order lookups. It also listens to
// status changes so a transition evicts the stale copy.
type OrderCache struct{ R *redis.Client }

func (c *OrderCache) Get(ctx context.Context, id string) (orders.Order, bool, error) {
	b, err := c.R.Get(ctx, fmt.Sprintf(KeyOrder, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func (c *OrderCache) Set(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, fmt.Sprintf(KeyOrder, o.ID), b, TTLOrderCache).Err()
}

func (c *OrderCache) OrderStatusChanged(ctx context.Context, ev orders.StatusChanged) error {
	return c.R.Del(ctx, fmt.Sprintf(KeyOrder, ev.OrderID)).Err()
}
