package ingestion

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/core"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/observability"
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// CommandEngine is the subset of the vault engine reachable over NATS.
type CommandEngine interface {
	Lock(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)
	Unlock(ctx context.Context, caller auth.Principal, key ledger.AccountKey, amount uint64) (*ledger.Account, error)
	Transfer(ctx context.Context, caller auth.Principal, from, to ledger.AccountKey, amount uint64) (src, dst *ledger.Account, err error)
}

// TokenVerifier authenticates the caller named in a command.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Principal, error)
}

// Disposition is what happened to a delivered command.
type Disposition string

const (
	DispositionApplied   Disposition = "applied"
	DispositionDuplicate Disposition = "duplicate"
	DispositionRejected  Disposition = "rejected"
	DispositionMalformed Disposition = "malformed"
	DispositionRetry     Disposition = "retry"
)

// Processor applies raw commands to the engine one at a time and settles
// each delivery. Business rejections and duplicates are acked since a
// redelivery would fail the same way; custody and store failures are
// nak'ed for redelivery.
type Processor struct {
	engine   CommandEngine
	verifier TokenVerifier
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewProcessor(engine CommandEngine, verifier TokenVerifier, metrics *observability.Metrics, log zerolog.Logger) *Processor {
	return &Processor{engine: engine, verifier: verifier, metrics: metrics, log: log}
}

// Run consumes in until ctx is cancelled or in is closed.
func (p *Processor) Run(ctx context.Context, in <-chan RawCommand) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			p.Handle(ctx, raw)
		}
	}
}

// Handle processes one command and acks, naks or terminates it.
func (p *Processor) Handle(ctx context.Context, raw RawCommand) Disposition {
	if p.metrics != nil {
		p.metrics.CommandsReceived.WithLabelValues(string(raw.Kind)).Inc()
	}

	d, err := p.apply(ctx, raw)
	log := p.log.With().Str("subject", raw.Subject).Str("disposition", string(d)).Logger()
	switch d {
	case DispositionApplied:
		log.Debug().Msg("command applied")
		settle(raw.AckFunc)
		return d
	case DispositionDuplicate:
		log.Debug().Msg("duplicate command skipped")
		settle(raw.AckFunc)
	case DispositionRejected:
		log.Warn().Err(err).Str("code", ledger.Code(err)).Msg("command rejected")
		settle(raw.AckFunc)
	case DispositionMalformed:
		log.Warn().Err(err).Msg("command dropped")
		settle(raw.TermFunc)
	default:
		log.Error().Err(err).Msg("command failed, will be redelivered")
		settle(raw.NakFunc)
	}
	if p.metrics != nil {
		p.metrics.CommandsFailed.WithLabelValues(string(raw.Kind), string(d)).Inc()
	}
	return d
}

func (p *Processor) apply(ctx context.Context, raw RawCommand) (Disposition, error) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return DispositionMalformed, err
	}
	caller, err := p.verifier.Verify(ctx, cmd.Token)
	if err != nil {
		return DispositionMalformed, err
	}
	if cmd.IdempotencyKey != "" {
		ctx = core.WithIdempotencyKey(ctx, cmd.IdempotencyKey)
	}

	switch cmd.Kind {
	case CommandLock:
		_, err = p.engine.Lock(ctx, caller, cmd.Account, cmd.Amount)
	case CommandUnlock:
		_, err = p.engine.Unlock(ctx, caller, cmd.Account, cmd.Amount)
	case CommandTransfer:
		_, _, err = p.engine.Transfer(ctx, caller, cmd.Account, cmd.To, cmd.Amount)
	}

	switch {
	case err == nil:
		return DispositionApplied, nil
	case errors.Is(err, core.ErrDuplicate):
		return DispositionDuplicate, err
	case ledger.IsRejection(err):
		return DispositionRejected, err
	default:
		return DispositionRetry, err
	}
}

func settle(fn func()) {
	if fn != nil {
		fn()
	}
}
