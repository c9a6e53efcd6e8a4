package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTargets reads the device tokens registered for an operator account.
type PGTargets struct{ DB *pgxpool.Pool }

func (t *PGTargets) Tokens(ctx context.Context, operatorID string) ([]string, error) {
	rows, err := t.DB.Query(ctx, `
		SELECT token FROM operator_devices WHERE operator_id=$1 ORDER BY token`, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

// StaticTargets serves a fixed token list regardless of operator.
type StaticTargets []string

func (s StaticTargets) Tokens(context.Context, string) ([]string, error) {
	return append([]string(nil), s...), nil
}
