package orders

import (
	"context"
	"time"
)

type Repository interface {
	// Insert stores a new order together with its creation audit row.
	Insert(ctx context.Context, o Order, created Change) error
	Get(ctx context.Context, id string) (Order, error)
	// List returns orders newest first; an empty status means any.
	List(ctx context.Context, status Status, limit int) ([]Order, error)
	// UpdateStatus moves the order from ch.From to ch.To and appends the audit
	// row atomically. ErrConflict if the order is no longer in ch.From.
	UpdateStatus(ctx context.Context, ch Change) (Order, error)
	// FlagAttention marks the order for manual intervention without changing
	// its status.
	FlagAttention(ctx context.Context, id, reason string, at time.Time) (Order, error)
	Audit(ctx context.Context, id string) ([]Change, error)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
