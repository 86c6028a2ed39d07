package main

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/config"
	"VaultLedger/internal/core"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/outbox"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/query"
	"VaultLedger/internal/server"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := observability.New(os.Stdout, "vaultledger", cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("VaultLedger stopped")
	}
	log.Info().Msg("VaultLedger shutdown complete")
}

func run(cfg config.Config, log zerolog.Logger) error {
	log.Info().Str("store", cfg.StoreDriver).Str("custody", cfg.CustodyKind).Msg("VaultLedger starting")

	// --- Context with graceful shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracing, err := observability.SetupTracing(ctx, "vaultledger", cfg.OTelEndpoint, 1.0)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker()

	// --- Store (runs migrations) ---
	dialect, err := persistence.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return err
	}
	st, err := persistence.Open(ctx, dialect, cfg.StoreDSN(), observability.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	healthChecker.AddCheck("store", func(ctx context.Context) error {
		return st.DB().PingContext(ctx)
	})
	log.Info().Msg("store opened, migrations applied")

	// --- NATS ---
	var (
		nc *nats.Conn
		js jetstream.JetStream
	)
	if cfg.CustodyKind == "nats" || cfg.CommandsEnabled || cfg.HasPublisher("nats") {
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, observability.Component(log, "nats"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		})
	}

	// --- Custody ---
	deriver, err := custody.NewDeriver([]byte(cfg.AuthoritySecret))
	if err != nil {
		return fmt.Errorf("authority deriver: %w", err)
	}
	var custodian custody.Custodian
	if cfg.CustodyKind == "nats" {
		custodian = custody.NewNATSCustodian(nc, cfg.CustodyTimeout)
	} else {
		log.Warn().Msg("using in-memory custodian, balances do not survive restart")
		custodian = custody.NewMemoryCustodian(nil)
	}

	// --- Engine ---
	engine := core.NewEngine(st, custodian, deriver,
		core.WithMetrics(metrics),
		core.WithLogger(observability.Component(log, "engine")),
		core.WithIdempotencyCapacity(cfg.IdempotencyLRUCapacity),
		core.WithAssetDecimals(cfg.Decimals()),
	)
	if err := engine.WarmIdempotency(ctx); err != nil {
		return err
	}

	verifier := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	queryService := query.NewQueryService(st, cfg.Decimals())

	errChan := make(chan error, 8)

	// 1. Outbox relay
	var publishers []outbox.Publisher
	if cfg.HasPublisher("nats") {
		if err := outbox.EnsureEventsStream(ctx, js); err != nil {
			return fmt.Errorf("ensure events stream: %w", err)
		}
		publishers = append(publishers, outbox.NewNATSPublisher(js))
	}
	if cfg.HasPublisher("kafka") {
		kp := outbox.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publishers = append(publishers, kp)
	}
	if len(publishers) > 0 {
		relay := outbox.NewRelay(st, publishers,
			outbox.WithBatchSize(cfg.OutboxBatch),
			outbox.WithInterval(cfg.OutboxInterval),
			outbox.WithMetrics(metrics),
			outbox.WithLogger(observability.Component(log, "outbox")),
		)
		go func() { errChan <- ignoreCanceled(relay.Run(ctx)) }()
	}

	// 2. Privileged command intake
	if cfg.CommandsEnabled {
		if err := ingestion.EnsureCommandStream(ctx, js); err != nil {
			return fmt.Errorf("ensure command stream: %w", err)
		}
		commands := make(chan ingestion.RawCommand, 256)
		subscriber := ingestion.NewNATSSubscriber(js, commands, observability.Component(log, "ingestion"))
		if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer subscriber.Stop()

		processor := ingestion.NewProcessor(engine, verifier, metrics, observability.Component(log, "processor"))
		go func() { errChan <- ignoreCanceled(processor.Run(ctx, commands)) }()
	}

	// 3. gRPC server and HTTP/JSON gateway
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Engine:        engine,
		QueryService:  queryService,
		Verifier:      verifier,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Logger:        observability.Component(log, "server"),
	})
	go func() { errChan <- grpcServer.StartGRPC(ctx) }()
	go func() { errChan <- grpcServer.StartHTTPGateway(ctx) }()

	// 4. Prometheus metrics server
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	log.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Int("publishers", len(publishers)).
		Bool("commands", cfg.CommandsEnabled).
		Msg("VaultLedger ready")

	// --- Wait for shutdown signal ---
	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, shutting down")
	case runErr = <-errChan:
		log.Error().Err(runErr).Msg("goroutine failed, shutting down")
	}
	healthChecker.SetReady(false)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	return runErr
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
