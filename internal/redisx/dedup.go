package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids for TTLDedup.
type Dedup struct {
	R     *redis.Client
	Scope string
}

// First claims id and reports whether this is its first delivery.
func (d *Dedup) First(ctx context.Context, id string) (bool, error) {
	return d.R.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Scope, id), 1, TTLDedup).Result()
}

// Release drops a claim so a redelivery is processed again. Used when the
// handler failed after First returned true.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.R.Del(ctx, fmt.Sprintf(KeyDedup, d.Scope, id)).Err()
}
