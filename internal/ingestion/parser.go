package ingestion

import (
	"VaultLedger/internal/ledger"
	"encoding/json"
	"errors"
	"fmt"
)

// CommandKind names a privileged operation accepted over NATS.
type CommandKind string

const (
	CommandLock     CommandKind = "lock"
	CommandUnlock   CommandKind = "unlock"
	CommandTransfer CommandKind = "transfer"
)

// ErrMalformed marks a command that can never succeed as sent.
var ErrMalformed = errors.New("malformed command")

// Command is a parsed privileged command. Token authenticates the
// registered caller issuing it.
type Command struct {
	Kind           CommandKind
	Token          string
	IdempotencyKey string
	Account        ledger.AccountKey
	To             ledger.AccountKey
	Amount         uint64
}

// --- JSON wire format ---
// Field names use snake_case to match upstream producers. Amounts are
// strings so the full uint64 range survives JSON.

type commandJSON struct {
	Token          string `json:"token"`
	IdempotencyKey string `json:"idempotency_key"`
	Owner          string `json:"owner"`
	Asset          string `json:"asset"`
	ToOwner        string `json:"to_owner,omitempty"`
	Amount         uint64 `json:"amount,string"`
}

// ParseCommand validates and converts raw.Data into a Command of raw.Kind.
func ParseCommand(raw RawCommand) (Command, error) {
	var j commandJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return Command{}, fmt.Errorf("%w: parse %s: %v", ErrMalformed, raw.Kind, err)
	}
	if j.Token == "" {
		return Command{}, fmt.Errorf("%w: token is required", ErrMalformed)
	}
	if j.Owner == "" || j.Asset == "" {
		return Command{}, fmt.Errorf("%w: owner and asset are required", ErrMalformed)
	}

	cmd := Command{
		Kind:           raw.Kind,
		Token:          j.Token,
		IdempotencyKey: j.IdempotencyKey,
		Account:        ledger.AccountKey{Owner: ledger.Identity(j.Owner), Asset: ledger.AssetKind(j.Asset)},
		Amount:         j.Amount,
	}

	switch raw.Kind {
	case CommandLock, CommandUnlock:
		if j.ToOwner != "" {
			return Command{}, fmt.Errorf("%w: to_owner is only valid for transfer", ErrMalformed)
		}
	case CommandTransfer:
		if j.ToOwner == "" {
			return Command{}, fmt.Errorf("%w: to_owner is required", ErrMalformed)
		}
		cmd.To = ledger.AccountKey{Owner: ledger.Identity(j.ToOwner), Asset: ledger.AssetKind(j.Asset)}
	default:
		return Command{}, fmt.Errorf("%w: unknown command kind %q", ErrMalformed, raw.Kind)
	}
	return cmd, nil
}
