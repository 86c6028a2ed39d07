package registry

import (
	"VaultLedger/internal/ledger"
	"context"
	"slices"
	"time"
)

// MaxAuthorizedCallers bounds the privileged allow-list.
const MaxAuthorizedCallers = 10

// Registry is the admin-controlled allow-list of identities permitted to
// lock, unlock and transfer collateral on any account.
type Registry struct {
	Admin     ledger.Identity
	Callers   []ledger.Identity
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New validates the seed list and returns an initialized registry.
func New(admin ledger.Identity, callers []ledger.Identity, now time.Time) (*Registry, error) {
	if admin == "" {
		return nil, ledger.ErrUnauthorized
	}
	if len(callers) > MaxAuthorizedCallers {
		return nil, ledger.ErrTooManyCallers
	}
	r := &Registry{
		Admin:     admin,
		Callers:   make([]ledger.Identity, 0, len(callers)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, c := range callers {
		if r.IsAuthorized(c) {
			return nil, ledger.ErrAlreadyAuthorized
		}
		r.Callers = append(r.Callers, c)
	}
	return r, nil
}

// IsAuthorized reports whether id is on the allow-list.
func (r *Registry) IsAuthorized(id ledger.Identity) bool {
	return slices.Contains(r.Callers, id)
}

// IsAdmin reports whether id administers this registry.
func (r *Registry) IsAdmin(id ledger.Identity) bool {
	return r.Admin == id
}

// Add appends id. Capacity is checked before membership, so re-adding a
// member of a full list reports TooManyCallers.
func (r *Registry) Add(id ledger.Identity) error {
	if len(r.Callers) >= MaxAuthorizedCallers {
		return ledger.ErrTooManyCallers
	}
	if r.IsAuthorized(id) {
		return ledger.ErrAlreadyAuthorized
	}
	r.Callers = append(r.Callers, id)
	return nil
}

// Remove drops id, preserving the order of the remaining entries. It
// reports whether id was a member; removing a non-member is a no-op.
func (r *Registry) Remove(id ledger.Identity) bool {
	i := slices.Index(r.Callers, id)
	if i < 0 {
		return false
	}
	r.Callers = slices.Delete(r.Callers, i, i+1)
	return true
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	c := *r
	c.Callers = slices.Clone(r.Callers)
	return &c
}

// Authorizer answers whether an identity may perform privileged transitions.
// The vault engine only depends on this capability, never on Registry
// storage.
type Authorizer interface {
	IsAuthorized(ctx context.Context, caller ledger.Identity) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller ledger.Identity) (bool, error)

func (f AuthorizerFunc) IsAuthorized(ctx context.Context, caller ledger.Identity) (bool, error) {
	return f(ctx, caller)
}

// Static returns an Authorizer over a fixed allow-list.
func Static(callers ...ledger.Identity) Authorizer {
	set := slices.Clone(callers)
	return AuthorizerFunc(func(_ context.Context, caller ledger.Identity) (bool, error) {
		return slices.Contains(set, caller), nil
	})
}
