// internal/event/deposit.go
package event

import (
	"VaultLedger/internal/ledger"
	"time"

	"github.com/google/uuid"
)

type Deposit struct {
	AccountID uuid.UUID        `json:"account_id"`
	Owner     ledger.Identity  `json:"owner"`
	AssetKind ledger.AssetKind `json:"asset_kind"`
	Amount    uint64           `json:"amount,string"`
	NewTotal  uint64           `json:"new_total,string"`
	Timestamp time.Time        `json:"timestamp"`
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) Subject() string {
	return ledger.AccountKey{Owner: d.Owner, Asset: d.AssetKind}.AccountPath()
}

func (d *Deposit) OccurredAt() time.Time {
	return d.Timestamp
}
