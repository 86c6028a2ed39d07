package store

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/registry"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a Store held in process memory. Transactions are serialized
// and applied from a working copy on commit.
type Memory struct {
	mu       sync.Mutex
	accounts map[ledger.AccountKey]*ledger.Account
	registry *registry.Registry
	events   []*event.EventEnvelope
	keys     map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.AccountKey]*ledger.Account),
		keys:     make(map[string]struct{}),
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:        m,
		accounts: make(map[ledger.AccountKey]*ledger.Account),
		deleted:  make(map[ledger.AccountKey]bool),
	}
	if m.registry != nil {
		tx.registry = m.registry.Clone()
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	for key := range tx.deleted {
		delete(m.accounts, key)
	}
	for key, acct := range tx.accounts {
		m.accounts[key] = acct
	}
	m.registry = tx.registry
	for _, env := range tx.events {
		m.events = append(m.events, env)
		m.keys[env.IdempotencyKey] = struct{}{}
	}
	return nil
}

func (m *Memory) GetAccount(_ context.Context, key ledger.AccountKey) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[key]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (m *Memory) ListAccounts(_ context.Context, owner ledger.Identity) ([]*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Account
	for key, acct := range m.accounts {
		if key.Owner == owner {
			out = append(out, acct.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetKind < out[j].AssetKind })
	return out, nil
}

func (m *Memory) GetRegistry(_ context.Context) (*registry.Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registry == nil {
		return nil, ErrNotFound
	}
	return m.registry.Clone(), nil
}

func (m *Memory) ListEvents(_ context.Context, afterSequence int64, limit int) ([]*event.EventEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.EventEnvelope
	for _, env := range m.events {
		if env.Sequence <= afterSequence {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneEnvelope(env))
	}
	return out, nil
}

func (m *Memory) UnpublishedEvents(_ context.Context, limit int) ([]*event.EventEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.EventEnvelope
	for _, env := range m.events {
		if env.PublishedAt != nil {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneEnvelope(env))
	}
	return out, nil
}

func (m *Memory) MarkPublished(_ context.Context, sequences []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(sequences))
	for _, s := range sequences {
		want[s] = true
	}
	for _, env := range m.events {
		if want[env.Sequence] && env.PublishedAt == nil {
			t := at
			env.PublishedAt = &t
		}
	}
	return nil
}

func (m *Memory) HasIdempotencyKey(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *Memory) Close() error {
	return nil
}

func cloneEnvelope(env *event.EventEnvelope) *event.EventEnvelope {
	c := *env
	c.Payload = append([]byte(nil), env.Payload...)
	if env.PublishedAt != nil {
		t := *env.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

type memTx struct {
	m        *Memory
	accounts map[ledger.AccountKey]*ledger.Account
	deleted  map[ledger.AccountKey]bool
	registry *registry.Registry
	events   []*event.EventEnvelope
}

func (tx *memTx) lookup(key ledger.AccountKey) (*ledger.Account, bool) {
	if tx.deleted[key] {
		return nil, false
	}
	if acct, ok := tx.accounts[key]; ok {
		return acct, true
	}
	acct, ok := tx.m.accounts[key]
	return acct, ok
}

func (tx *memTx) GetAccount(_ context.Context, key ledger.AccountKey) (*ledger.Account, error) {
	acct, ok := tx.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (tx *memTx) InsertAccount(_ context.Context, acct *ledger.Account) error {
	key := acct.Key()
	if _, ok := tx.lookup(key); ok {
		return fmt.Errorf("%w: account %s", ErrConflict, key)
	}
	delete(tx.deleted, key)
	tx.accounts[key] = acct.Clone()
	return nil
}

func (tx *memTx) UpdateAccount(_ context.Context, acct *ledger.Account) error {
	key := acct.Key()
	if _, ok := tx.lookup(key); !ok {
		return ErrNotFound
	}
	tx.accounts[key] = acct.Clone()
	return nil
}

func (tx *memTx) DeleteAccount(_ context.Context, key ledger.AccountKey) error {
	if _, ok := tx.lookup(key); !ok {
		return ErrNotFound
	}
	delete(tx.accounts, key)
	tx.deleted[key] = true
	return nil
}

func (tx *memTx) GetRegistry(_ context.Context) (*registry.Registry, error) {
	if tx.registry == nil {
		return nil, ErrNotFound
	}
	return tx.registry.Clone(), nil
}

func (tx *memTx) SaveRegistry(_ context.Context, reg *registry.Registry) error {
	tx.registry = reg.Clone()
	return nil
}

func (tx *memTx) ChainHead(_ context.Context) (ChainHead, error) {
	if n := len(tx.events); n > 0 {
		last := tx.events[n-1]
		return ChainHead{Sequence: last.Sequence, Hash: last.StateHash}, nil
	}
	if n := len(tx.m.events); n > 0 {
		last := tx.m.events[n-1]
		return ChainHead{Sequence: last.Sequence, Hash: last.StateHash}, nil
	}
	return ChainHead{}, nil
}

func (tx *memTx) HasIdempotencyKey(_ context.Context, key string) (bool, error) {
	if _, ok := tx.m.keys[key]; ok {
		return true, nil
	}
	for _, pending := range tx.events {
		if pending.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) AppendEvent(_ context.Context, env *event.EventEnvelope) error {
	if _, ok := tx.m.keys[env.IdempotencyKey]; ok {
		return fmt.Errorf("%w: idempotency key %s", ErrConflict, env.IdempotencyKey)
	}
	for _, pending := range tx.events {
		if pending.IdempotencyKey == env.IdempotencyKey {
			return fmt.Errorf("%w: idempotency key %s", ErrConflict, env.IdempotencyKey)
		}
	}
	tx.events = append(tx.events, cloneEnvelope(env))
	return nil
}
