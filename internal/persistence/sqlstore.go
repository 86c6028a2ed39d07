package persistence

import (
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the durable store.Store over Postgres or SQLite.
// Amounts are stored as decimal text so the full uint64 range survives
// database/sql, and timestamps as unix microseconds.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     zerolog.Logger
}

var _ store.Store = (*SQLStore)(nil)

// Open connects to dsn and applies the embedded migrations.
func Open(ctx context.Context, dialect Dialect, dsn string, log zerolog.Logger) (*SQLStore, error) {
	db, err := OpenDB(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	migrator, err := NewMigrator(db, dialect, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect, log: log}, nil
}

// OpenDB connects to dsn with the pool settings of dialect. It does not
// migrate.
func OpenDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store dsn is required")
	}
	if dialect == DialectSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time; readers share the same handle.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// DB exposes the handle for health checks.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn in one database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &sqlTxView{q: sqlTx, d: s.dialect}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAccount(ctx context.Context, key ledger.AccountKey) (*ledger.Account, error) {
	return getAccount(ctx, s.db, s.dialect, key, false)
}

func (s *SQLStore) ListAccounts(ctx context.Context, owner ledger.Identity) ([]*ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE owner = ? ORDER BY asset_kind`), string(owner))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetRegistry(ctx context.Context) (*registry.Registry, error) {
	return getRegistry(ctx, s.db, s.dialect, false)
}

// --- shared row access ---

const accountColumns = `id, owner, asset_kind, asset_location, total, locked, available,
	lifetime_deposited, lifetime_withdrawn, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func getAccount(ctx context.Context, q querier, d Dialect, key ledger.AccountKey, lock bool) (*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner = ? AND asset_kind = ?`
	if lock {
		query += d.forUpdate()
	}
	acct, err := scanAccount(q.QueryRowContext(ctx, d.rebind(query), string(key.Owner), string(key.Asset)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return acct, err
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var (
		acct                                     ledger.Account
		owner, asset                             string
		total, locked, available, dep, withdrawn string
		createdAt, updatedAt                     int64
	)
	if err := row.Scan(&acct.ID, &owner, &asset, &acct.AssetLocation,
		&total, &locked, &available, &dep, &withdrawn, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	acct.Owner = ledger.Identity(owner)
	acct.AssetKind = ledger.AssetKind(asset)

	var err error
	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&acct.Total, total},
		{&acct.Locked, locked},
		{&acct.Available, available},
		{&acct.LifetimeDeposited, dep},
		{&acct.LifetimeWithdrawn, withdrawn},
	} {
		if *f.dst, err = parseAmount(f.src); err != nil {
			return nil, fmt.Errorf("account %s/%s: %w", owner, asset, err)
		}
	}
	acct.CreatedAt = fromMicros(createdAt)
	acct.UpdatedAt = fromMicros(updatedAt)
	return &acct, nil
}

func getRegistry(ctx context.Context, q querier, d Dialect, lock bool) (*registry.Registry, error) {
	query := `SELECT admin, callers, created_at, updated_at FROM authority_registry WHERE id = 1`
	if lock {
		query += d.forUpdate()
	}
	var (
		admin, callers       string
		createdAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx, query).Scan(&admin, &callers, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	reg := &registry.Registry{
		Admin:     ledger.Identity(admin),
		CreatedAt: fromMicros(createdAt),
		UpdatedAt: fromMicros(updatedAt),
	}
	if err := json.Unmarshal([]byte(callers), &reg.Callers); err != nil {
		return nil, fmt.Errorf("decode registry callers: %w", err)
	}
	return reg, nil
}

// parseAmount reads a NUMERIC(20,0) or TEXT amount column.
func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
