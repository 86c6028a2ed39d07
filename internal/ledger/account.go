package ledger

import (
	vmath "VaultLedger/internal/math"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is a verified principal (owner, admin or privileged caller).
type Identity string

// AssetKind names the single token type an account holds.
type AssetKind string

// Validate rejects empty or malformed asset kinds.
func (a AssetKind) Validate() error {
	if a == "" || strings.ContainsAny(string(a), ": \t\n") {
		return ErrInvalidAssetKind
	}
	return nil
}

// AccountKey addresses a live account: one per (owner, asset kind).
type AccountKey struct {
	Owner Identity
	Asset AssetKind
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	return fmt.Sprintf("vault:%s:%s", k.Owner, k.Asset)
}

func (k AccountKey) String() string {
	return k.AccountPath()
}

// Less orders keys so multi-account transitions lock rows deterministically.
func (k AccountKey) Less(o AccountKey) bool {
	if k.Owner != o.Owner {
		return k.Owner < o.Owner
	}
	return k.Asset < o.Asset
}

// Account is the per-owner custodial balance record.
//
// Owner, AssetLocation, AssetKind and CreatedAt never change after
// creation. Total always equals Available + Locked.
type Account struct {
	ID            uuid.UUID
	Owner         Identity
	AssetKind     AssetKind
	AssetLocation string

	Total     uint64
	Locked    uint64
	Available uint64

	LifetimeDeposited uint64
	LifetimeWithdrawn uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount returns an empty account bound to its custodial holding.
func NewAccount(id uuid.UUID, key AccountKey, assetLocation string, now time.Time) *Account {
	return &Account{
		ID:            id,
		Owner:         key.Owner,
		AssetKind:     key.Asset,
		AssetLocation: assetLocation,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Key returns the account's address.
func (a *Account) Key() AccountKey {
	return AccountKey{Owner: a.Owner, Asset: a.AssetKind}
}

// Clone returns an independent copy.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// Deposit credits amount to total and available and bumps the lifetime
// deposited counter. On error the account is unchanged.
func (a *Account) Deposit(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	total, ok := vmath.AddU64(a.Total, amount)
	if !ok {
		return ErrOverflow
	}
	available, ok := vmath.AddU64(a.Available, amount)
	if !ok {
		return ErrOverflow
	}
	deposited, ok := vmath.AddU64(a.LifetimeDeposited, amount)
	if !ok {
		return ErrOverflow
	}
	a.Total, a.Available, a.LifetimeDeposited = total, available, deposited
	return nil
}

// Withdraw debits amount from available and total and bumps the lifetime
// withdrawn counter. On error the account is unchanged.
func (a *Account) Withdraw(amount uint64) error {
	next := *a
	if err := next.debit(amount); err != nil {
		return err
	}
	withdrawn, ok := vmath.AddU64(next.LifetimeWithdrawn, amount)
	if !ok {
		return ErrOverflow
	}
	next.LifetimeWithdrawn = withdrawn
	*a = next
	return nil
}

// Credit adds an inbound transfer. Lifetime counters are not touched.
func (a *Account) Credit(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	total, ok := vmath.AddU64(a.Total, amount)
	if !ok {
		return ErrOverflow
	}
	available, ok := vmath.AddU64(a.Available, amount)
	if !ok {
		return ErrOverflow
	}
	a.Total, a.Available = total, available
	return nil
}

// Debit removes an outbound transfer from available funds.
func (a *Account) Debit(amount uint64) error {
	return a.debit(amount)
}

func (a *Account) debit(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if a.Available < amount {
		return ErrInsufficientAvailable
	}
	available, ok := vmath.SubU64(a.Available, amount)
	if !ok {
		return ErrUnderflow
	}
	total, ok := vmath.SubU64(a.Total, amount)
	if !ok {
		return ErrUnderflow
	}
	a.Total, a.Available = total, available
	return nil
}

// Lock moves amount from available to locked. Total is unchanged.
func (a *Account) Lock(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if a.Available < amount {
		return ErrInsufficientAvailable
	}
	available, locked, ok := vmath.MoveU64(a.Available, a.Locked, amount)
	if !ok {
		return ErrOverflow
	}
	a.Available, a.Locked = available, locked
	return nil
}

// Unlock moves amount from locked back to available. Total is unchanged.
func (a *Account) Unlock(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if a.Locked < amount {
		return ErrInsufficientLocked
	}
	locked, available, ok := vmath.MoveU64(a.Locked, a.Available, amount)
	if !ok {
		return ErrOverflow
	}
	a.Available, a.Locked = available, locked
	return nil
}

// CheckClosable reports whether the account may be closed.
func (a *Account) CheckClosable() error {
	if a.Total != 0 {
		return ErrAccountNotEmpty
	}
	if a.Locked != 0 {
		return ErrHasReservedFunds
	}
	return nil
}
