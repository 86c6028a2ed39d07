package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// tier2Timeout bounds the durable dedup lookup on the hot path.
const tier2Timeout = 500 * time.Millisecond

// HasIdempotencyKey checks the event log for a committed request key.
func (s *SQLStore) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, tier2Timeout)
	defer cancel()
	return hasIdempotencyKey(ctx, s.db, s.dialect, key)
}

func hasIdempotencyKey(ctx context.Context, q querier, d Dialect, key string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, d.rebind(`
        SELECT 1
        FROM events
        WHERE idempotency_key = ?
        LIMIT 1
    `), key).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil // Not found - not a duplicate
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
