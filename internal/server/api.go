package server

import (
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/query"
)

// --- requests ---

// AccountRequest addresses one account. An empty Owner means the caller.
type AccountRequest struct {
	Owner string `json:"owner,omitempty"`
	Asset string `json:"asset"`
}

func (r *AccountRequest) key(caller ledger.Identity) ledger.AccountKey {
	owner := ledger.Identity(r.Owner)
	if owner == "" {
		owner = caller
	}
	return ledger.AccountKey{Owner: owner, Asset: ledger.AssetKind(r.Asset)}
}

// AmountRequest moves Amount minor units on one account.
type AmountRequest struct {
	AccountRequest
	Amount         uint64 `json:"amount,string"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransferRequest moves available funds between two owners' accounts of
// the same asset.
type TransferRequest struct {
	FromOwner      string `json:"from_owner"`
	ToOwner        string `json:"to_owner"`
	Asset          string `json:"asset"`
	Amount         uint64 `json:"amount,string"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type InitializeAuthorityRequest struct {
	Callers []string `json:"callers"`
}

type CallerRequest struct {
	Caller string `json:"caller"`
}

type ListAccountsRequest struct {
	Owner string `json:"owner,omitempty"`
}

type ListEventsRequest struct {
	After int64 `json:"after,omitempty"`
	Limit int   `json:"limit,omitempty"`
}

type Empty struct{}

// --- responses ---

type AccountResponse struct {
	Account query.AccountView `json:"account"`
}

type TransferResponse struct {
	Source      query.AccountView `json:"source"`
	Destination query.AccountView `json:"destination"`
}

type RegistryResponse struct {
	Registry query.RegistryView `json:"registry"`
}

type ListAccountsResponse struct {
	Accounts []query.AccountView `json:"accounts"`
}
