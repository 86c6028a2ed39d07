package outbox

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/store"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Relay drains the unpublished tail of the event log into the configured
// publishers. Events are marked published only after every publisher
// accepted the batch, so delivery is at-least-once and ordered by sequence.
type Relay struct {
	store      store.Store
	publishers []Publisher
	batchSize  int
	interval   time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	metrics    *observability.Metrics
	log        zerolog.Logger
}

type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) { r.batchSize = n }
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) { r.interval = d }
}

func WithMaxBackoff(d time.Duration) RelayOption {
	return func(r *Relay) { r.maxBackoff = d }
}

func WithMetrics(m *observability.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func WithLogger(l zerolog.Logger) RelayOption {
	return func(r *Relay) { r.log = l }
}

func NewRelay(st store.Store, publishers []Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:      st,
		publishers: publishers,
		batchSize:  100,
		interval:   500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		now:        func() time.Time { return time.Now().UTC() },
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll; otherwise the relay waits for the interval.
func (r *Relay) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		n, err := r.drainWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error().Err(err).Msg("outbox drain failed")
		}

		if n >= r.batchSize {
			timer.Reset(0)
		} else {
			timer.Reset(r.interval)
		}
	}
}

// drainWithRetry attempts one batch with exponential backoff. The relay
// never skips an event: it retries the same batch until it succeeds or ctx
// is cancelled.
func (r *Relay) drainWithRetry(ctx context.Context) (int, error) {
	backoff := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			r.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("outbox retry")
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
		}

		n, err := r.DrainOnce(ctx)
		if err == nil {
			if attempt > 0 {
				r.log.Info().Int("attempts", attempt).Msg("outbox recovered")
			}
			return n, nil
		}
		r.log.Warn().Err(err).Msg("outbox batch failed")
	}
}

// DrainOnce publishes at most one batch and returns how many events it
// marked published.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	envs, err := r.store.UnpublishedEvents(ctx, r.batchSize)
	if err != nil {
		r.recordError("store", "read")
		return 0, fmt.Errorf("read outbox: %w", err)
	}
	if r.metrics != nil {
		r.metrics.OutboxBacklog.Set(float64(len(envs)))
	}
	if len(envs) == 0 {
		return 0, nil
	}

	msgs := make([]Message, len(envs))
	for i, env := range envs {
		msgs[i] = NewMessage(env)
	}

	for _, p := range r.publishers {
		if err := p.Publish(ctx, msgs); err != nil {
			r.recordError(p.Name(), "publish")
			return 0, fmt.Errorf("publish to %s: %w", p.Name(), err)
		}
		if r.metrics != nil {
			r.metrics.OutboxPublished.WithLabelValues(p.Name()).Add(float64(len(msgs)))
		}
	}

	if err := r.store.MarkPublished(ctx, sequences(envs), r.now()); err != nil {
		r.recordError("store", "mark")
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if r.metrics != nil {
		r.metrics.OutboxBatchSize.Observe(float64(len(envs)))
	}
	r.log.Debug().
		Int("events", len(envs)).
		Int64("last_sequence", envs[len(envs)-1].Sequence).
		Msg("outbox batch published")
	return len(envs), nil
}

func (r *Relay) recordError(sink, stage string) {
	if r.metrics != nil {
		r.metrics.OutboxErrors.WithLabelValues(sink, stage).Inc()
	}
}

func sequences(envs []*event.EventEnvelope) []int64 {
	out := make([]int64, len(envs))
	for i, env := range envs {
		out[i] = env.Sequence
	}
	return out
}
