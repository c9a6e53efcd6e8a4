package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-kiosk-orders/internal/history"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable marks a transient store failure. Safe to retry.
	ErrUnavailable     = errors.New("reconciliation unavailable")
	ErrInvalidLineItem = errors.New("invalid line item")
)

type Policy string

const (
	// PolicyPartial skips and reports short line items and commits the rest.
	PolicyPartial Policy = "partial"
	// PolicyAllOrNothing commits nothing when any line item is short.
	PolicyAllOrNothing Policy = "all-or-nothing"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPartial:
		return PolicyPartial, nil
	case PolicyAllOrNothing:
		return PolicyAllOrNothing, nil
	}
	return "", fmt.Errorf("unknown stock policy %q", s)
}

type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Reason string

const (
	ReasonInsufficientStock Reason = "InsufficientStock"
	ReasonUnknownProduct    Reason = "UnknownProduct"
)

type Shortfall struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    Reason `json:"reason"`
}

// Decrement is a committed stock change; StockLevel is the level after it.
type Decrement struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	StockLevel  int    `json:"stock_level"`
}

type Outcome string

const (
	OutcomeFull     Outcome = "full"
	OutcomePartial  Outcome = "partial"
	OutcomeRejected Outcome = "rejected"
)

type Result struct {
	OrderID      string          `json:"order_id"`
	Policy       Policy          `json:"policy"`
	Committed    []Decrement     `json:"committed"`
	Shortfalls   []Shortfall     `json:"shortfalls,omitempty"`
	History      []history.Entry `json:"history,omitempty"`
	ReconciledAt time.Time       `json:"reconciled_at"`
	// Replayed is set when the order had already been reconciled and this
	// call performed no writes.
	Replayed bool `json:"-"`
}

func (r Result) Outcome() Outcome {
	switch {
	case len(r.Shortfalls) == 0:
		return OutcomeFull
	case len(r.Committed) == 0:
		return OutcomeRejected
	default:
		return OutcomePartial
	}
}

func (r Result) ShortProductIDs() []string {
	ids := make([]string, 0, len(r.Shortfalls))
	for _, s := range r.Shortfalls {
		ids = append(ids, s.ProductID)
	}
	return ids
}

type Reconciler struct {
	store  Store
	policy Policy
	log    *zap.Logger
	now    func() time.Time
}

func NewReconciler(store Store, policy Policy, log *zap.Logger) *Reconciler {
	if policy == "" {
		policy = PolicyPartial
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, policy: policy, log: log, now: time.Now}
}

func (r *Reconciler) Policy() Policy { return r.policy }

// Reconcile decrements stock for every line item of an order in one unit of
// work. Line items that would drive a stock level below zero are reported as
// shortfalls. Store failures come back wrapped in ErrUnavailable and leave
// nothing committed. Reconciling the same order again returns the first
// result with Replayed set.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string, items []LineItem) (Result, error) {
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: missing order id", ErrInvalidLineItem)
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity < 1 {
			return Result{}, fmt.Errorf("%w: product=%q qty=%d", ErrInvalidLineItem, it.ProductID, it.Quantity)
		}
	}

	var res Result
	err := r.store.InTx(ctx, func(tx Tx) error {
		prev, done, err := tx.Lookup(ctx, orderID)
		if err != nil {
			return err
		}
		if done {
			prev.Replayed = true
			res = prev
			return nil
		}

		products, err := tx.LockProducts(ctx, distinctSorted(items))
		if err != nil {
			return err
		}

		res = r.plan(orderID, items, products)
		if r.policy == PolicyAllOrNothing && len(res.Shortfalls) > 0 {
			res.Committed = nil
		}

		levels := map[string]int{}
		for _, d := range res.Committed {
			levels[d.ProductID] = d.StockLevel
		}
		for _, id := range sortedKeys(levels) {
			if err := tx.SetStockLevel(ctx, id, levels[id]); err != nil {
				return err
			}
		}
		// history rows follow the stock writes in the same unit of work
		for _, d := range res.Committed {
			e := history.Outbound(d.ProductName, d.Quantity, res.ReconciledAt)
			if err := tx.AppendHistory(ctx, e); err != nil {
				return err
			}
			res.History = append(res.History, e)
		}
		return tx.Record(ctx, res)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		r.log.Warn("reconciliation failed", zap.String("order_id", orderID), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if res.Replayed {
		r.log.Info("reconciliation replayed", zap.String("order_id", orderID))
	} else {
		r.log.Info("reconciliation committed",
			zap.String("order_id", orderID),
			zap.String("outcome", string(res.Outcome())),
			zap.Int("committed", len(res.Committed)),
			zap.Strings("short", res.ShortProductIDs()))
	}
	return res, nil
}

// plan walks the line items in order against the locked stock levels. A
// product repeated in the snapshot is decremented cumulatively.
func (r *Reconciler) plan(orderID string, items []LineItem, products map[string]Product) Result {
	res := Result{OrderID: orderID, Policy: r.policy, ReconciledAt: r.now().UTC()}
	levels := make(map[string]int, len(products))
	for id, p := range products {
		levels[id] = p.StockLevel
	}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			res.Shortfalls = append(res.Shortfalls, Shortfall{
				ProductID: it.ProductID, Requested: it.Quantity, Reason: ReasonUnknownProduct,
			})
			continue
		}
		next := levels[it.ProductID] - it.Quantity
		if next < 0 {
			res.Shortfalls = append(res.Shortfalls, Shortfall{
				ProductID: it.ProductID, Requested: it.Quantity, Available: levels[it.ProductID],
				Reason: ReasonInsufficientStock,
			})
			continue
		}
		levels[it.ProductID] = next
		res.Committed = append(res.Committed, Decrement{
			ProductID: it.ProductID, ProductName: p.Name, Quantity: it.Quantity, StockLevel: next,
		})
	}
	return res
}

func distinctSorted(items []LineItem) []string {
	seen := map[string]bool{}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
