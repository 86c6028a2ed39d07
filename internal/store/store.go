package store

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/registry"
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an insert collides with an existing
	// record or idempotency key.
	ErrConflict = errors.New("store: conflict")
)

// ChainHead is the position of the last appended event. A zero head means
// the log is empty.
type ChainHead struct {
	Sequence int64
	Hash     [32]byte
}

// Tx is the view of the store inside one atomic unit. Nothing written
// through a Tx is visible to others until InTx returns nil.
type Tx interface {
	GetAccount(ctx context.Context, key ledger.AccountKey) (*ledger.Account, error)
	InsertAccount(ctx context.Context, acct *ledger.Account) error
	UpdateAccount(ctx context.Context, acct *ledger.Account) error
	DeleteAccount(ctx context.Context, key ledger.AccountKey) error

	GetRegistry(ctx context.Context) (*registry.Registry, error)
	SaveRegistry(ctx context.Context, reg *registry.Registry) error

	// ChainHead reads the log position and holds it until the unit ends,
	// serializing writers.
	ChainHead(ctx context.Context) (ChainHead, error)
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)
	AppendEvent(ctx context.Context, env *event.EventEnvelope) error
}

// Store persists accounts, the registry and the event log.
type Store interface {
	// InTx runs fn atomically. If fn returns an error every write made
	// through tx is discarded.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAccount(ctx context.Context, key ledger.AccountKey) (*ledger.Account, error)
	ListAccounts(ctx context.Context, owner ledger.Identity) ([]*ledger.Account, error)
	GetRegistry(ctx context.Context) (*registry.Registry, error)

	ListEvents(ctx context.Context, afterSequence int64, limit int) ([]*event.EventEnvelope, error)
	UnpublishedEvents(ctx context.Context, limit int) ([]*event.EventEnvelope, error)
	MarkPublished(ctx context.Context, sequences []int64, at time.Time) error
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)

	Close() error
}
