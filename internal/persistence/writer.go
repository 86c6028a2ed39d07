package persistence

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// sqlTxView is the store.Tx of one database transaction. Reads that
// precede a write lock the row so concurrent units serialize per row.
type sqlTxView struct {
	q querier
	d Dialect
}

func (tx *sqlTxView) GetAccount(ctx context.Context, key ledger.AccountKey) (*ledger.Account, error) {
	return getAccount(ctx, tx.q, tx.d, key, true)
}

func (tx *sqlTxView) InsertAccount(ctx context.Context, acct *ledger.Account) error {
	_, err := tx.q.ExecContext(ctx, tx.d.rebind(`INSERT INTO accounts
		(id, owner, asset_kind, asset_location, total, locked, available,
		 lifetime_deposited, lifetime_withdrawn, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		acct.ID, string(acct.Owner), string(acct.AssetKind), acct.AssetLocation,
		formatAmount(acct.Total), formatAmount(acct.Locked), formatAmount(acct.Available),
		formatAmount(acct.LifetimeDeposited), formatAmount(acct.LifetimeWithdrawn),
		toMicros(acct.CreatedAt), toMicros(acct.UpdatedAt),
	)
	if err != nil {
		if tx.d.isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s", store.ErrConflict, acct.Key())
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (tx *sqlTxView) UpdateAccount(ctx context.Context, acct *ledger.Account) error {
	res, err := tx.q.ExecContext(ctx, tx.d.rebind(`UPDATE accounts SET
		total = ?, locked = ?, available = ?,
		lifetime_deposited = ?, lifetime_withdrawn = ?, updated_at = ?
		WHERE owner = ? AND asset_kind = ?`),
		formatAmount(acct.Total), formatAmount(acct.Locked), formatAmount(acct.Available),
		formatAmount(acct.LifetimeDeposited), formatAmount(acct.LifetimeWithdrawn),
		toMicros(acct.UpdatedAt), string(acct.Owner), string(acct.AssetKind),
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return expectOneRow(res)
}

func (tx *sqlTxView) DeleteAccount(ctx context.Context, key ledger.AccountKey) error {
	res, err := tx.q.ExecContext(ctx, tx.d.rebind(`DELETE FROM accounts WHERE owner = ? AND asset_kind = ?`),
		string(key.Owner), string(key.Asset))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return expectOneRow(res)
}

func (tx *sqlTxView) GetRegistry(ctx context.Context) (*registry.Registry, error) {
	return getRegistry(ctx, tx.q, tx.d, true)
}

func (tx *sqlTxView) SaveRegistry(ctx context.Context, reg *registry.Registry) error {
	callers := reg.Callers
	if callers == nil {
		callers = []ledger.Identity{}
	}
	encoded, err := json.Marshal(callers)
	if err != nil {
		return fmt.Errorf("encode registry callers: %w", err)
	}
	_, err = tx.q.ExecContext(ctx, tx.d.rebind(`INSERT INTO authority_registry
		(id, admin, callers, created_at, updated_at) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			admin = excluded.admin,
			callers = excluded.callers,
			updated_at = excluded.updated_at`),
		string(reg.Admin), string(encoded), toMicros(reg.CreatedAt), toMicros(reg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// ChainHead locks the single chain_head row. Every writing unit takes it
// first, so sequences are assigned one unit at a time.
func (tx *sqlTxView) ChainHead(ctx context.Context) (store.ChainHead, error) {
	var (
		head store.ChainHead
		hash []byte
	)
	err := tx.q.QueryRowContext(ctx,
		`SELECT sequence, hash FROM chain_head WHERE id = 1`+tx.d.forUpdate(),
	).Scan(&head.Sequence, &hash)
	if err != nil {
		return store.ChainHead{}, fmt.Errorf("load chain head: %w", err)
	}
	if head.Sequence > 0 {
		if len(hash) != len(head.Hash) {
			return store.ChainHead{}, fmt.Errorf("chain head hash has %d bytes", len(hash))
		}
		copy(head.Hash[:], hash)
	}
	return head, nil
}

func (tx *sqlTxView) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	return hasIdempotencyKey(ctx, tx.q, tx.d, key)
}

// AppendEvent writes env and advances the chain head to it.
func (tx *sqlTxView) AppendEvent(ctx context.Context, env *event.EventEnvelope) error {
	_, err := tx.q.ExecContext(ctx, tx.d.rebind(`INSERT INTO events
		(sequence, event_id, idempotency_key, event_type, subject, payload,
		 state_hash, prev_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		env.Sequence, env.EventID, env.IdempotencyKey, int32(env.EventType), env.Subject,
		env.Payload, env.StateHash[:], env.PrevHash[:], toMicros(env.Timestamp),
	)
	if err != nil {
		if tx.d.isUniqueViolation(err) {
			return fmt.Errorf("%w: event %d key %s", store.ErrConflict, env.Sequence, env.IdempotencyKey)
		}
		return fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.q.ExecContext(ctx, tx.d.rebind(`UPDATE chain_head SET sequence = ?, hash = ? WHERE id = 1`),
		env.Sequence, env.StateHash[:]); err != nil {
		return fmt.Errorf("advance chain head: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- event log reads ---

const eventColumns = `sequence, event_id, idempotency_key, event_type, subject, payload,
	state_hash, prev_hash, timestamp, published_at`

func (s *SQLStore) ListEvents(ctx context.Context, afterSequence int64, limit int) ([]*event.EventEnvelope, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE sequence > ? ORDER BY sequence`
	args := []any{afterSequence}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// UnpublishedEvents returns the outbox backlog in sequence order.
func (s *SQLStore) UnpublishedEvents(ctx context.Context, limit int) ([]*event.EventEnvelope, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE published_at IS NULL ORDER BY sequence`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// MarkPublished stamps the given events. Already published events keep
// their first stamp.
func (s *SQLStore) MarkPublished(ctx context.Context, sequences []int64, at time.Time) error {
	if len(sequences) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sequences)), ", ")
	args := make([]any, 0, len(sequences)+1)
	args = append(args, toMicros(at))
	for _, seq := range sequences {
		args = append(args, seq)
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE events SET published_at = ? WHERE published_at IS NULL AND sequence IN (`+placeholders+`)`), args...)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (s *SQLStore) queryEvents(ctx context.Context, query string, args ...any) ([]*event.EventEnvelope, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*event.EventEnvelope
	for rows.Next() {
		env, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*event.EventEnvelope, error) {
	var (
		env                 event.EventEnvelope
		eventType           int32
		stateHash, prevHash []byte
		ts                  int64
		publishedAt         sql.NullInt64
	)
	if err := row.Scan(&env.Sequence, &env.EventID, &env.IdempotencyKey, &eventType, &env.Subject,
		&env.Payload, &stateHash, &prevHash, &ts, &publishedAt); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if len(stateHash) != len(env.StateHash) || len(prevHash) != len(env.PrevHash) {
		return nil, errors.New("scan event: malformed hash column")
	}
	env.EventType = event.EventType(eventType)
	copy(env.StateHash[:], stateHash)
	copy(env.PrevHash[:], prevHash)
	env.Timestamp = fromMicros(ts)
	if publishedAt.Valid {
		t := fromMicros(publishedAt.Int64)
		env.PublishedAt = &t
	}
	return &env, nil
}
