package core

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// InitializeAuthority creates the registry once, with admin as its
// administrator and callers as the initial allow-list.
func (e *Engine) InitializeAuthority(ctx context.Context, admin auth.Principal, callers []ledger.Identity) (*registry.Registry, error) {
	var out *registry.Registry
	err := e.execute(ctx, OpInitializeAuthority, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		_, err := tx.GetRegistry(ctx)
		if err == nil {
			return ledger.ErrAuthorityInitialized
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load registry: %w", err)
		}

		reg, err := registry.New(admin.ID, callers, now)
		if err != nil {
			return err
		}
		if err := tx.SaveRegistry(ctx, reg); err != nil {
			return fmt.Errorf("save registry: %w", err)
		}

		emit(&event.AuthorityInitialized{
			Admin:             reg.Admin,
			AuthorizedCallers: slices.Clone(reg.Callers),
			Timestamp:         now,
		})
		out = reg
		return nil
	})
	return out, err
}

// AddCaller appends caller to the allow-list.
func (e *Engine) AddCaller(ctx context.Context, admin auth.Principal, caller ledger.Identity) (*registry.Registry, error) {
	var out *registry.Registry
	err := e.execute(ctx, OpAddCaller, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		reg, err := e.loadRegistryAsAdmin(ctx, tx, admin)
		if err != nil {
			return err
		}
		if caller == "" {
			return ledger.ErrUnauthorizedCaller
		}
		if err := reg.Add(caller); err != nil {
			return err
		}
		reg.UpdatedAt = now
		if err := tx.SaveRegistry(ctx, reg); err != nil {
			return fmt.Errorf("save registry: %w", err)
		}

		emit(&event.CallerAuthorized{
			Admin:     admin.ID,
			Caller:    caller,
			Timestamp: now,
		})
		out = reg
		return nil
	})
	return out, err
}

// RemoveCaller drops caller from the allow-list. Removing an identity that
// is not a member succeeds and still emits CallerDeauthorized.
func (e *Engine) RemoveCaller(ctx context.Context, admin auth.Principal, caller ledger.Identity) (*registry.Registry, error) {
	var out *registry.Registry
	err := e.execute(ctx, OpRemoveCaller, func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error {
		reg, err := e.loadRegistryAsAdmin(ctx, tx, admin)
		if err != nil {
			return err
		}
		wasMember := reg.Remove(caller)
		reg.UpdatedAt = now
		if err := tx.SaveRegistry(ctx, reg); err != nil {
			return fmt.Errorf("save registry: %w", err)
		}

		emit(&event.CallerDeauthorized{
			Admin:     admin.ID,
			Caller:    caller,
			WasMember: wasMember,
			Timestamp: now,
		})
		out = reg
		return nil
	})
	return out, err
}

func (e *Engine) loadRegistryAsAdmin(ctx context.Context, tx store.Tx, admin auth.Principal) (*registry.Registry, error) {
	reg, err := tx.GetRegistry(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.ErrAuthorityNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if admin.ID == "" || !reg.IsAdmin(admin.ID) {
		return nil, ledger.ErrUnauthorized
	}
	return reg, nil
}
