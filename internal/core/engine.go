package core

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	vmath "VaultLedger/internal/math"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/store"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicate is returned when a request carrying an already committed
// idempotency key is replayed. Nothing is changed.
var ErrDuplicate = errors.New("duplicate request")

// Operation names used in metrics, logs and spans.
const (
	OpCreateAccount       = "create_account"
	OpCloseAccount        = "close_account"
	OpDeposit             = "deposit"
	OpWithdraw            = "withdraw"
	OpLock                = "lock"
	OpUnlock              = "unlock"
	OpTransfer            = "transfer"
	OpInitializeAuthority = "initialize_authority"
	OpAddCaller           = "add_caller"
	OpRemoveCaller        = "remove_caller"
)

// Engine is the collateral vault state machine. Every operation runs as one
// store transaction: authorize, validate, write the new state, call the
// custodian, append the event. Any failure discards the whole unit.
type Engine struct {
	store       store.Store
	custodian   custody.Custodian
	authorities *custody.Deriver
	authorizer  registry.Authorizer
	validator   *ledger.InvariantValidator
	idempotency *IdempotencyChecker
	decimals    map[ledger.AssetKind]int32
	now         func() time.Time
	metrics     *observability.Metrics
	log         zerolog.Logger
	tracer      trace.Tracer

	idempotencyCapacity int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the transition timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAuthorizer replaces the store-backed registry check for privileged
// operations.
func WithAuthorizer(a registry.Authorizer) Option {
	return func(e *Engine) { e.authorizer = a }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIdempotencyCapacity sets the size of the in-memory dedup tier.
func WithIdempotencyCapacity(n int) Option {
	return func(e *Engine) { e.idempotencyCapacity = n }
}

// WithAssetDecimals overrides the per-asset precision put on custody orders.
func WithAssetDecimals(decimals map[ledger.AssetKind]int32) Option {
	return func(e *Engine) {
		for k, v := range decimals {
			e.decimals[k] = v
		}
	}
}

func NewEngine(st store.Store, custodian custody.Custodian, authorities *custody.Deriver, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		custodian:   custodian,
		authorities: authorities,
		validator:   ledger.NewInvariantValidator(),
		decimals:    make(map[ledger.AssetKind]int32),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		log:         zerolog.Nop(),
		tracer:      otel.Tracer("VaultLedger/internal/core"),

		idempotencyCapacity: 100_000,
	}
	for name, cfg := range vmath.DefaultDecimals {
		e.decimals[ledger.AssetKind(name)] = cfg.DecimalPrecision
	}
	for _, opt := range opts {
		opt(e)
	}
	e.idempotency = NewIdempotencyChecker(e.idempotencyCapacity, st, e.metrics, e.log)
	return e
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey tags ctx with a request key. A second request with the
// same key returns ErrDuplicate without effect.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom returns the key set by WithIdempotencyKey, or "".
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// txFunc is one transition body. emit queues an event that is appended to
// the log only if the body returns nil.
type txFunc func(ctx context.Context, tx store.Tx, now time.Time, emit func(event.Event)) error

// execute is the processing pipeline shared by every operation
func (e *Engine) execute(ctx context.Context, op string, fn txFunc) error {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "vault."+op, trace.WithAttributes(attribute.String("vault.op", op)))
	defer span.End()

	// Step 1: Idempotency check (two-tier)
	key := IdempotencyKeyFrom(ctx)
	if key != "" && e.idempotency.IsDuplicate(ctx, op, key) {
		e.observe(op, start, ErrDuplicate, nil)
		return ErrDuplicate
	}

	// Step 2: Transition and event append in one unit. The chain head is
	// taken first so the durable key check and the append see the same log.
	var appended []*event.EventEnvelope
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		head, err := tx.ChainHead(ctx)
		if err != nil {
			return fmt.Errorf("read chain head: %w", err)
		}
		if key != "" {
			dup, err := tx.HasIdempotencyKey(ctx, key)
			if err != nil {
				return fmt.Errorf("check idempotency key: %w", err)
			}
			if dup {
				return ErrDuplicate
			}
		}

		now := e.now()
		var pending []event.Event
		if err := fn(ctx, tx, now, func(evt event.Event) { pending = append(pending, evt) }); err != nil {
			return err
		}
		envs, err := e.appendEvents(ctx, tx, head, key, now, pending)
		if err != nil {
			return err
		}
		appended = envs
		return nil
	})

	// Step 3: Metrics, logs, dedup bookkeeping
	e.observe(op, start, err, appended)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ledger.Code(err))
		return err
	}
	if key != "" {
		e.idempotency.MarkProcessed(key)
	}
	return nil
}

func (e *Engine) appendEvents(ctx context.Context, tx store.Tx, head store.ChainHead, key string, now time.Time, pending []event.Event) ([]*event.EventEnvelope, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	prev := head.Hash
	if head.Sequence == 0 {
		prev = GenesisHash
	}
	seq := head.Sequence

	envs := make([]*event.EventEnvelope, 0, len(pending))
	for i, evt := range pending {
		payload, err := event.Encode(evt)
		if err != nil {
			return nil, err
		}
		seq++
		id := uuid.New()

		idem := key
		switch {
		case idem == "":
			idem = id.String()
		case i > 0:
			idem = fmt.Sprintf("%s#%d", key, i)
		}

		env := &event.EventEnvelope{
			Sequence:       seq,
			EventID:        id,
			IdempotencyKey: idem,
			EventType:      evt.EventType(),
			Subject:        evt.Subject(),
			Timestamp:      now,
			Payload:        payload,
			StateHash:      ChainHash(prev, seq, evt.EventType(), payload),
			PrevHash:       prev,
		}
		if err := tx.AppendEvent(ctx, env); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil, ErrDuplicate
			}
			return nil, fmt.Errorf("append event: %w", err)
		}
		prev = env.StateHash
		envs = append(envs, env)
	}
	return envs, nil
}

func (e *Engine) observe(op string, start time.Time, err error, envs []*event.EventEnvelope) {
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.OpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
		if err == nil {
			e.metrics.OpsApplied.WithLabelValues(op).Inc()
			for _, env := range envs {
				e.metrics.EventsAppended.WithLabelValues(env.EventType.String()).Inc()
				e.metrics.ChainSequence.Set(float64(env.Sequence))
			}
		} else if errors.Is(err, ErrDuplicate) {
			e.metrics.OpsRejected.WithLabelValues(op, "Duplicate").Inc()
		} else {
			e.metrics.OpsRejected.WithLabelValues(op, ledger.Code(err)).Inc()
		}
	}

	switch {
	case err == nil:
		evt := e.log.Debug().Str("op", op).Dur("elapsed", elapsed)
		if n := len(envs); n > 0 {
			evt = evt.Int64("sequence", envs[n-1].Sequence)
		}
		evt.Msg("transition committed")
	case errors.Is(err, ErrDuplicate):
		e.log.Debug().Str("op", op).Msg("duplicate request skipped")
	case ledger.IsRejection(err):
		e.log.Warn().Str("op", op).Str("code", ledger.Code(err)).Err(err).Msg("transition rejected")
	default:
		e.log.Error().Str("op", op).Err(err).Msg("transition failed")
	}
}

// --- shared steps ---

func (e *Engine) loadAccount(ctx context.Context, tx store.Tx, key ledger.AccountKey) (*ledger.Account, error) {
	acct, err := tx.GetAccount(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", key, err)
	}
	return acct, nil
}

func (e *Engine) saveAccount(ctx context.Context, tx store.Tx, before, after *ledger.Account, now time.Time) error {
	after.UpdatedAt = now
	if err := e.validator.ValidateTransition(before, after); err != nil {
		return err
	}
	if err := tx.UpdateAccount(ctx, after); err != nil {
		return fmt.Errorf("update account %s: %w", after.Key(), err)
	}
	return nil
}

func requireOwner(caller auth.Principal, acct *ledger.Account) error {
	if caller.ID == "" || caller.ID != acct.Owner {
		return ledger.ErrUnauthorized
	}
	return nil
}

// requirePrivileged checks the caller against the registry as seen inside
// tx, unless a fixed authorizer was configured.
func (e *Engine) requirePrivileged(ctx context.Context, tx store.Tx, caller auth.Principal) error {
	if caller.ID == "" {
		return ledger.ErrUnauthorizedCaller
	}
	authorizer := e.authorizer
	if authorizer == nil {
		authorizer = txAuthorizer{tx: tx}
	}
	ok, err := authorizer.IsAuthorized(ctx, caller.ID)
	if err != nil {
		return fmt.Errorf("check caller %s: %w", caller.ID, err)
	}
	if !ok {
		return ledger.ErrUnauthorizedCaller
	}
	return nil
}

// txAuthorizer reads the registry through the running transaction so a
// concurrent removal cannot race a privileged transition.
type txAuthorizer struct {
	tx store.Tx
}

func (a txAuthorizer) IsAuthorized(ctx context.Context, caller ledger.Identity) (bool, error) {
	reg, err := a.tx.GetRegistry(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reg.IsAuthorized(caller), nil
}

func (e *Engine) authorityFor(acct *ledger.Account) (*custody.Authority, error) {
	a, err := e.authorities.Derive(acct.Key())
	if err != nil {
		return nil, err
	}
	if string(a.Holding()) != acct.AssetLocation {
		return nil, fmt.Errorf("%w: %s holding %s does not match derived %s",
			ledger.ErrInvariantViolated, acct.Key(), acct.AssetLocation, a.Holding())
	}
	return a, nil
}

func (e *Engine) newOrder(from, to custody.Holding, asset ledger.AssetKind, amount uint64) custody.TransferOrder {
	return custody.TransferOrder{
		OrderID:  uuid.New(),
		From:     from,
		To:       to,
		Asset:    asset,
		Decimals: e.decimals[asset],
		Amount:   amount,
	}
}

// callCustody runs one custodian interaction. Its failure aborts the
// transition and is reported as TransferFailed.
func (e *Engine) callCustody(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "custody."+call)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if e.metrics != nil {
		e.metrics.CustodyCallDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "custody failed")
		if e.metrics != nil {
			e.metrics.CustodyFailures.WithLabelValues(call).Inc()
		}
		return fmt.Errorf("%w: %s: %w", ledger.ErrTransferFailed, call, err)
	}
	return nil
}

// --- reads ---

// GetAccount returns the committed state of the account at key.
func (e *Engine) GetAccount(ctx context.Context, key ledger.AccountKey) (*ledger.Account, error) {
	acct, err := e.store.GetAccount(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.ErrAccountNotFound
	}
	return acct, err
}

// GetRegistry returns the committed registry.
func (e *Engine) GetRegistry(ctx context.Context) (*registry.Registry, error) {
	reg, err := e.store.GetRegistry(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.ErrAuthorityNotInitialized
	}
	return reg, err
}

// IsAuthorized reports whether id may perform privileged operations.
func (e *Engine) IsAuthorized(ctx context.Context, id ledger.Identity) (bool, error) {
	if e.authorizer != nil {
		return e.authorizer.IsAuthorized(ctx, id)
	}
	reg, err := e.store.GetRegistry(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reg.IsAuthorized(id), nil
}

// WarmIdempotency loads the most recent committed request keys into the
// in-memory dedup tier.
func (e *Engine) WarmIdempotency(ctx context.Context) error {
	const page = 1000
	keys := make([]string, 0, page)
	var after int64
	for {
		envs, err := e.store.ListEvents(ctx, after, page)
		if err != nil {
			return fmt.Errorf("warm idempotency: %w", err)
		}
		for _, env := range envs {
			keys = append(keys, env.IdempotencyKey)
			after = env.Sequence
		}
		if over := len(keys) - e.idempotencyCapacity; over > 0 {
			keys = keys[over:]
		}
		if len(envs) < page {
			break
		}
	}
	e.idempotency.Warm(keys)
	e.log.Info().Int("keys", len(keys)).Msg("idempotency cache warmed")
	return nil
}
