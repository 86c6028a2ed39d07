package core

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/store"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAccount opens an empty account for the caller and asks the
// custodian to open its holding under the account's derived authority.
func (e *Engine) CreateAccount(ctx context.Context, caller auth.Principal, key ledger.AccountKey) (*ledger.Account, error) {
	var out *ledger.Account
	err := e.execute(ctx, OpCreateAccount, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		if caller.ID == "" || caller.ID != key.Owner {
			return ledger.ErrUnauthorized
		}
		if err := key.Asset.Validate(); err != nil {
			return err
		}

		_, err := tx.GetAccount(ctx, key)
		if err == nil {
			return ledger.ErrAccountExists
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load account %s: %w", key, err)
		}

		authority, err := e.authorities.Derive(key)
		if err != nil {
			return err
		}
		acct := ledger.NewAccount(uuid.New(), key, string(authority.Holding()), now)
		if err := e.validator.ValidateBalance(acct); err != nil {
			return err
		}
		if err := tx.InsertAccount(ctx, acct); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ledger.ErrAccountExists
			}
			return fmt.Errorf("insert account %s: %w", key, err)
		}

		if err := e.callCustody(ctx, "open", func(ctx context.Context) error {
			return e.custodian.Open(ctx, authority.Holding(), key.Asset, authority.PublicKey())
		}); err != nil {
			return err
		}

		emit(&event.AccountInitialized{
			AccountID:     acct.ID,
			Owner:         acct.Owner,
			AssetKind:     acct.AssetKind,
			AssetLocation: acct.AssetLocation,
			Timestamp:     now,
		})
		out = acct
		return nil
	})
	return out, err
}

// CloseAccount deletes an empty account and releases its holding back to
// the owner. The returned account is the final state before deletion.
func (e *Engine) CloseAccount(ctx context.Context, caller auth.Principal, key ledger.AccountKey) (*ledger.Account, error) {
	var out *ledger.Account
	err := e.execute(ctx, OpCloseAccount, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		acct, err := e.loadAccount(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, acct); err != nil {
			return err
		}
		if err := acct.CheckClosable(); err != nil {
			return err
		}
		authority, err := e.authorityFor(acct)
		if err != nil {
			return err
		}

		if err := tx.DeleteAccount(ctx, key); err != nil {
			return fmt.Errorf("delete account %s: %w", key, err)
		}

		if err := e.callCustody(ctx, "release", func(ctx context.Context) error {
			return e.custodian.Release(ctx, authority.Holding(), acct.Owner, authority.SignRelease(acct.Owner))
		}); err != nil {
			return err
		}

		emit(&event.AccountClosed{
			AccountID: acct.ID,
			Owner:     acct.Owner,
			AssetKind: acct.AssetKind,
			Timestamp: now,
		})
		out = acct
		return nil
	})
	return out, err
}

// Deposit moves amount from the owner's wallet holding into the account's
// custodial holding, authorized by the owner's own credential.
func (e *Engine) Deposit(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error) {
	var out *ledger.Account
	err := e.execute(ctx, OpDeposit, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		acct, err := e.loadAccount(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, acct); err != nil {
			return err
		}

		before := acct.Clone()
		if err := acct.Deposit(amount); err != nil {
			return err
		}
		if err := e.saveAccount(ctx, tx, before, acct, now); err != nil {
			return err
		}

		order := e.newOrder(custody.OwnerHolding(acct.Owner, acct.AssetKind), custody.Holding(acct.AssetLocation), acct.AssetKind, amount)
		if err := e.callCustody(ctx, "transfer", func(ctx context.Context) error {
			return e.custodian.Transfer(ctx, order, custody.OwnerProof(caller))
		}); err != nil {
			return err
		}

		emit(&event.Deposit{
			AccountID: acct.ID,
			Owner:     acct.Owner,
			AssetKind: acct.AssetKind,
			Amount:    amount,
			NewTotal:  acct.Total,
			Timestamp: now,
		})
		out = acct
		return nil
	})
	return out, err
}

// Withdraw returns amount of available collateral to the owner's wallet
// holding, signed by the account's derived authority.
func (e *Engine) Withdraw(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error) {
	var out *ledger.Account
	err := e.execute(ctx, OpWithdraw, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		acct, err := e.loadAccount(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, acct); err != nil {
			return err
		}
		authority, err := e.authorityFor(acct)
		if err != nil {
			return err
		}

		before := acct.Clone()
		if err := acct.Withdraw(amount); err != nil {
			return err
		}
		if err := e.saveAccount(ctx, tx, before, acct, now); err != nil {
			return err
		}

		order := e.newOrder(authority.Holding(), custody.OwnerHolding(acct.Owner, acct.AssetKind), acct.AssetKind, amount)
		proof, err := authority.SignTransfer(order)
		if err != nil {
			return err
		}
		if err := e.callCustody(ctx, "transfer", func(ctx context.Context) error {
			return e.custodian.Transfer(ctx, order, proof)
		}); err != nil {
			return err
		}

		emit(&event.Withdraw{
			AccountID: acct.ID,
			Owner:     acct.Owner,
			AssetKind: acct.AssetKind,
			Amount:    amount,
			NewTotal:  acct.Total,
			Timestamp: now,
		})
		out = acct
		return nil
	})
	return out, err
}

// Lock reserves available collateral on behalf of a registered caller.
func (e *Engine) Lock(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error) {
	var out *ledger.Account
	err := e.execute(ctx, OpLock, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		if err := e.requirePrivileged(ctx, tx, caller); err != nil {
			return err
		}
		if amount == 0 {
			return ledger.ErrInvalidAmount
		}
		acct, err := e.loadAccount(ctx, tx, key)
		if err != nil {
			return err
		}

		before := acct.Clone()
		if err := acct.Lock(amount); err != nil {
			return err
		}
		if err := e.saveAccount(ctx, tx, before, acct, now); err != nil {
			return err
		}

		emit(&event.Lock{
			AccountID: acct.ID,
			Owner:     acct.Owner,
			AssetKind: acct.AssetKind,
			Amount:    amount,
			Locked:    acct.Locked,
			Available: acct.Available,
			Caller:    caller.ID,
			Timestamp: now,
		})
		out = acct
		return nil
	})
	return out, err
}

// Unlock releases reserved collateral on behalf of a registered caller.
func (e *Engine) Unlock(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error) {
	var out *ledger.Account
	err := e.execute(ctx, OpUnlock, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		if err := e.requirePrivileged(ctx, tx, caller); err != nil {
			return err
		}
		if amount == 0 {
			return ledger.ErrInvalidAmount
		}
		acct, err := e.loadAccount(ctx, tx, key)
		if err != nil {
			return err
		}

		before := acct.Clone()
		if err := acct.Unlock(amount); err != nil {
			return err
		}
		if err := e.saveAccount(ctx, tx, before, acct, now); err != nil {
			return err
		}

		emit(&event.Unlock{
			AccountID: acct.ID,
			Owner:     acct.Owner,
			AssetKind: acct.AssetKind,
			Amount:    amount,
			Locked:    acct.Locked,
			Available: acct.Available,
			Caller:    caller.ID,
			Timestamp: now,
		})
		out = acct
		return nil
	})
	return out, err
}

// Transfer moves available collateral between two accounts of the same
// asset kind on behalf of a registered caller, e.g. to settle a position
// or a liquidation. Returns the new source and destination states.
func (e *Engine) Transfer(ctx context.Context, caller auth.Principal, from, to ledger.AccountKey, amount uint64) (src, dst *ledger.Account, err error) {
	err = e.execute(ctx, OpTransfer, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		if err := e.requirePrivileged(ctx, tx, caller); err != nil {
			return err
		}
		if amount == 0 {
			return ledger.ErrInvalidAmount
		}
		if from == to {
			return ledger.ErrSameAccount
		}
		if from.Asset != to.Asset {
			return ledger.ErrInvalidAssetKind
		}

		// Lock rows in key order so opposite transfers cannot deadlock.
		first, second := from, to
		if to.Less(from) {
			first, second = to, from
		}
		a, err := e.loadAccount(ctx, tx, first)
		if err != nil {
			return err
		}
		b, err := e.loadAccount(ctx, tx, second)
		if err != nil {
			return err
		}
		source, dest := a, b
		if first != from {
			source, dest = b, a
		}

		authority, err := e.authorityFor(source)
		if err != nil {
			return err
		}

		srcBefore, dstBefore := source.Clone(), dest.Clone()
		if err := source.Debit(amount); err != nil {
			return err
		}
		if err := dest.Credit(amount); err != nil {
			return err
		}
		if err := e.validator.ValidateConservation(srcBefore, dstBefore, source, dest); err != nil {
			return err
		}
		if err := e.saveAccount(ctx, tx, srcBefore, source, now); err != nil {
			return err
		}
		if err := e.saveAccount(ctx, tx, dstBefore, dest, now); err != nil {
			return err
		}

		order := e.newOrder(authority.Holding(), custody.Holding(dest.AssetLocation), source.AssetKind, amount)
		proof, err := authority.SignTransfer(order)
		if err != nil {
			return err
		}
		if err := e.callCustody(ctx, "transfer", func(ctx context.Context) error {
			return e.custodian.Transfer(ctx, order, proof)
		}); err != nil {
			return err
		}

		emit(&event.Transfer{
			FromAccountID: source.ID,
			FromOwner:     source.Owner,
			ToAccountID:   dest.ID,
			ToOwner:       dest.Owner,
			AssetKind:     source.AssetKind,
			Amount:        amount,
			Caller:        caller.ID,
			Timestamp:     now,
		})
		src, dst = source, dest
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}
