package query

import (
	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	vmath "VaultLedger/internal/math"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000

	verifyPageSize = 1000
)

// QueryService provides read-only views over committed state. It never
// opens a write transaction.
type QueryService struct {
	store    store.Store
	decimals map[ledger.AssetKind]vmath.DecimalConfig
}

func NewQueryService(st store.Store, decimals map[ledger.AssetKind]int32) *QueryService {
	qs := &QueryService{
		store:    st,
		decimals: make(map[ledger.AssetKind]vmath.DecimalConfig),
	}
	for name, cfg := range vmath.DefaultDecimals {
		qs.decimals[ledger.AssetKind(name)] = cfg
	}
	for asset, precision := range decimals {
		qs.decimals[asset] = vmath.DecimalConfig{DecimalPrecision: precision}
	}
	return qs
}

// GetAccount returns the account at key.
func (qs *QueryService) GetAccount(ctx context.Context, key ledger.AccountKey) (*AccountView, error) {
	acct, err := qs.store.GetAccount(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	view := qs.ViewAccount(acct)
	return &view, nil
}

// ListAccounts returns every live account of owner ordered by asset.
func (qs *QueryService) ListAccounts(ctx context.Context, owner ledger.Identity) ([]AccountView, error) {
	accts, err := qs.store.ListAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	views := make([]AccountView, 0, len(accts))
	for _, acct := range accts {
		views = append(views, qs.ViewAccount(acct))
	}
	return views, nil
}

// GetRegistry returns the privileged caller allow-list.
func (qs *QueryService) GetRegistry(ctx context.Context) (*RegistryView, error) {
	reg, err := qs.store.GetRegistry(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.ErrAuthorityNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get registry: %w", err)
	}
	view := ViewRegistry(reg)
	return &view, nil
}

// ViewRegistry renders the allow-list.
func ViewRegistry(reg *registry.Registry) RegistryView {
	callers := make([]string, 0, len(reg.Callers))
	for _, c := range reg.Callers {
		callers = append(callers, string(c))
	}
	return RegistryView{
		Admin:     string(reg.Admin),
		Callers:   callers,
		Capacity:  registry.MaxAuthorizedCallers,
		CreatedAt: reg.CreatedAt,
		UpdatedAt: reg.UpdatedAt,
	}
}

// ListEvents returns up to limit events with sequence greater than after.
func (qs *QueryService) ListEvents(ctx context.Context, after int64, limit int) (*EventPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if after < 0 {
		after = 0
	}

	envs, err := qs.store.ListEvents(ctx, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	page := &EventPage{Events: make([]EventView, 0, len(envs))}
	for _, env := range envs {
		page.Events = append(page.Events, eventView(env))
	}
	if len(envs) == limit {
		page.NextAfter = envs[len(envs)-1].Sequence
	}
	return page, nil
}

// VerifyChain walks the whole event log and recomputes every hash link.
// HeadSequence is the last event that linked correctly.
func (qs *QueryService) VerifyChain(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{IsHealthy: true}
	prev := core.GenesisHash
	var prevSeq int64

	for {
		envs, err := qs.store.ListEvents(ctx, prevSeq, verifyPageSize)
		if err != nil {
			return nil, fmt.Errorf("verify chain: %w", err)
		}
		broken := core.VerifyChain(prev, prevSeq, envs)
		for _, env := range envs {
			report.EventsChecked++
			if env.Sequence == broken {
				break
			}
			prev, prevSeq = env.StateHash, env.Sequence
		}
		if broken != 0 {
			report.IsHealthy = false
			report.BrokenAt = broken
			break
		}
		if len(envs) < verifyPageSize {
			break
		}
	}

	report.HeadSequence = prevSeq
	report.HeadHash = hex.EncodeToString(prev[:])
	return report, nil
}

// FormatAmount renders a minor-unit amount of asset for display.
func (qs *QueryService) FormatAmount(asset ledger.AssetKind, amount uint64) string {
	return qs.decimalsFor(asset).Format(amount)
}

// ParseAmount converts a display amount of asset into minor units.
func (qs *QueryService) ParseAmount(asset ledger.AssetKind, s string) (uint64, error) {
	return qs.decimalsFor(asset).ParseAmount(s)
}

func (qs *QueryService) decimalsFor(asset ledger.AssetKind) vmath.DecimalConfig {
	return qs.decimals[asset]
}

// ViewAccount renders acct with its asset's display precision.
func (qs *QueryService) ViewAccount(acct *ledger.Account) AccountView {
	dec := qs.decimalsFor(acct.AssetKind)
	return AccountView{
		ID:                acct.ID.String(),
		Owner:             string(acct.Owner),
		Asset:             string(acct.AssetKind),
		AssetLocation:     acct.AssetLocation,
		Decimals:          dec.DecimalPrecision,
		Total:             acct.Total,
		Available:         acct.Available,
		Locked:            acct.Locked,
		TotalDisplay:      dec.Format(acct.Total),
		AvailableDisplay:  dec.Format(acct.Available),
		LockedDisplay:     dec.Format(acct.Locked),
		LifetimeDeposited: acct.LifetimeDeposited,
		LifetimeWithdrawn: acct.LifetimeWithdrawn,
		CreatedAt:         acct.CreatedAt,
		UpdatedAt:         acct.UpdatedAt,
	}
}

func eventView(env *event.EventEnvelope) EventView {
	return EventView{
		Sequence:       env.Sequence,
		EventID:        env.EventID.String(),
		EventType:      env.EventType.String(),
		Subject:        env.Subject,
		IdempotencyKey: env.IdempotencyKey,
		Payload:        json.RawMessage(env.Payload),
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Timestamp:      env.Timestamp,
		PublishedAt:    env.PublishedAt,
	}
}
