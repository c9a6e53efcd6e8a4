package history

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGReader struct{ DB *pgxpool.Pool }

func (r *PGReader) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, action, product_name, details, "timestamp"
		FROM history ORDER BY "timestamp" DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Action, &e.ProductName, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Append writes an entry inside an open transaction.
func Append(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO history(id, action, product_name, details, "timestamp")
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Action, e.ProductName, e.Details, e.Timestamp)
	return err
}
