package reload

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresHistory stores reload outcomes in the index_loads table.
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (h *PostgresHistory) Record(ctx context.Context, o Outcome) error {
	var errText sql.NullString
	if o.Error != "" {
		errText = sql.NullString{String: o.Error, Valid: true}
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO index_loads
			(source, reason, status, records, tokens, generation, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.Source, o.Reason, o.Status, o.Records, o.Tokens, int64(o.Generation),
		errText, o.StartedAt, o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting index load: %w", err)
	}
	return nil
}

// Recent returns the last n outcomes, newest first.
func (h *PostgresHistory) Recent(ctx context.Context, n int) ([]Outcome, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT source, reason, status, records, tokens, generation, error, started_at, duration_ms
		FROM index_loads
		ORDER BY started_at DESC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("querying index loads: %w", err)
	}
	defer rows.Close()

	out := make([]Outcome, 0, n)
	for rows.Next() {
		var (
			o          Outcome
			generation int64
			errText    sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&o.Source, &o.Reason, &o.Status, &o.Records, &o.Tokens,
			&generation, &errText, &o.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning index load: %w", err)
		}
		o.Generation = uint64(generation)
		o.Error = errText.String
		o.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}
