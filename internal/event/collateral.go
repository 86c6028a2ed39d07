package event

import (
	"VaultLedger/internal/ledger"
	"time"

	"github.com/google/uuid"
)

// Lock records collateral reserved by a privileged caller.
type Lock struct {
	AccountID uuid.UUID        `json:"account_id"`
	Owner     ledger.Identity  `json:"owner"`
	AssetKind ledger.AssetKind `json:"asset_kind"`
	Amount    uint64           `json:"amount,string"`
	Locked    uint64           `json:"locked_balance,string"`
	Available uint64           `json:"available_balance,string"`
	Caller    ledger.Identity  `json:"caller"`
	Timestamp time.Time        `json:"timestamp"`
}

func (l *Lock) EventType() EventType {
	return EventTypeLock
}

func (l *Lock) Subject() string {
	return ledger.AccountKey{Owner: l.Owner, Asset: l.AssetKind}.AccountPath()
}

func (l *Lock) OccurredAt() time.Time {
	return l.Timestamp
}

// Unlock records collateral released by a privileged caller.
type Unlock struct {
	AccountID uuid.UUID        `json:"account_id"`
	Owner     ledger.Identity  `json:"owner"`
	AssetKind ledger.AssetKind `json:"asset_kind"`
	Amount    uint64           `json:"amount,string"`
	Locked    uint64           `json:"locked_balance,string"`
	Available uint64           `json:"available_balance,string"`
	Caller    ledger.Identity  `json:"caller"`
	Timestamp time.Time        `json:"timestamp"`
}

func (u *Unlock) EventType() EventType {
	return EventTypeUnlock
}

func (u *Unlock) Subject() string {
	return ledger.AccountKey{Owner: u.Owner, Asset: u.AssetKind}.AccountPath()
}

func (u *Unlock) OccurredAt() time.Time {
	return u.Timestamp
}

// Transfer records available collateral moved between two accounts of the
// same asset kind.
type Transfer struct {
	FromAccountID uuid.UUID        `json:"from_account_id"`
	FromOwner     ledger.Identity  `json:"from_owner"`
	ToAccountID   uuid.UUID        `json:"to_account_id"`
	ToOwner       ledger.Identity  `json:"to_owner"`
	AssetKind     ledger.AssetKind `json:"asset_kind"`
	Amount        uint64           `json:"amount,string"`
	Caller        ledger.Identity  `json:"caller"`
	Timestamp     time.Time        `json:"timestamp"`
}

func (t *Transfer) EventType() EventType {
	return EventTypeTransfer
}

// Subject is the source account; the destination is in the payload.
func (t *Transfer) Subject() string {
	return ledger.AccountKey{Owner: t.FromOwner, Asset: t.AssetKind}.AccountPath()
}

func (t *Transfer) OccurredAt() time.Time {
	return t.Timestamp
}
