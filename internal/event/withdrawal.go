package event

import (
	"VaultLedger/internal/ledger"
	"time"

	"github.com/google/uuid"
)

type Withdraw struct {
	AccountID uuid.UUID        `json:"account_id"`
	Owner     ledger.Identity  `json:"owner"`
	AssetKind ledger.AssetKind `json:"asset_kind"`
	Amount    uint64           `json:"amount,string"`
	NewTotal  uint64           `json:"new_total,string"`
	Timestamp time.Time        `json:"timestamp"`
}

func (w *Withdraw) EventType() EventType {
	return EventTypeWithdraw
}

func (w *Withdraw) Subject() string {
	return ledger.AccountKey{Owner: w.Owner, Asset: w.AssetKind}.AccountPath()
}

func (w *Withdraw) OccurredAt() time.Time {
	return w.Timestamp
}
