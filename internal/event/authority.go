package event

import (
	"VaultLedger/internal/ledger"
	"time"
)

type AuthorityInitialized struct {
	Admin             ledger.Identity   `json:"admin"`
	AuthorizedCallers []ledger.Identity `json:"authorized_callers"`
	Timestamp         time.Time         `json:"timestamp"`
}

func (a *AuthorityInitialized) EventType() EventType {
	return EventTypeAuthorityInitialized
}

func (a *AuthorityInitialized) Subject() string {
	return RegistrySubject
}

func (a *AuthorityInitialized) OccurredAt() time.Time {
	return a.Timestamp
}

type CallerAuthorized struct {
	Admin     ledger.Identity `json:"admin"`
	Caller    ledger.Identity `json:"caller"`
	Timestamp time.Time       `json:"timestamp"`
}

func (c *CallerAuthorized) EventType() EventType {
	return EventTypeCallerAuthorized
}

func (c *CallerAuthorized) Subject() string {
	return RegistrySubject
}

func (c *CallerAuthorized) OccurredAt() time.Time {
	return c.Timestamp
}

type CallerDeauthorized struct {
	Admin     ledger.Identity `json:"admin"`
	Caller    ledger.Identity `json:"caller"`
	WasMember bool            `json:"was_member"`
	Timestamp time.Time       `json:"timestamp"`
}

func (c *CallerDeauthorized) EventType() EventType {
	return EventTypeCallerDeauthorized
}

func (c *CallerDeauthorized) Subject() string {
	return RegistrySubject
}

func (c *CallerDeauthorized) OccurredAt() time.Time {
	return c.Timestamp
}
