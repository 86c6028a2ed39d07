package server

import (
	"VaultLedger/internal/observability"
	"VaultLedger/internal/query"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	health        *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	log           zerolog.Logger
}

// ServerDeps holds all dependencies needed by the gRPC services.
type ServerDeps struct {
	Engine        Engine
	QueryService  *query.QueryService
	Verifier      TokenVerifier
	Metrics       *observability.Metrics
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

// NewGRPCServer creates a new gRPC server with all services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			ObservabilityInterceptor(deps.Metrics, deps.Logger),
			AuthInterceptor(deps.Verifier),
		),
	)

	RegisterVaultServiceServer(grpcServer, NewVaultService(deps.Engine, deps.QueryService))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &GRPCServer{
		grpcServer:    grpcServer,
		health:        healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		log:           deps.Logger,
	}
}

// Serve serves gRPC on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()
	return s.grpcServer.Serve(lis)
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.Serve(ctx, lis)
}

// StartHTTPGateway starts the HTTP/JSON gateway (blocking). Every route is
// proxied to the gRPC server so authentication, metrics and error mapping
// stay in one place.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	conn, err := grpc.NewClient(s.grpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("dial grpc for gateway: %w", err)
	}
	defer conn.Close()

	mux, err := NewGatewayMux(NewVaultClient(conn))
	if err != nil {
		return fmt.Errorf("register gateway routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           httpMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Str("grpc", s.grpcAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
