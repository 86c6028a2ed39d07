package server

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/core"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/observability"
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenVerifier authenticates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Principal, error)
}

// AuthInterceptor resolves the caller of every VaultService RPC from the
// "authorization" metadata. Other services (health) pass through.
func AuthInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization metadata is required")
		}
		token, err := auth.BearerToken(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		p, err := verifier.Verify(ctx, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(auth.WithPrincipal(ctx, p), req)
	}
}

// ObservabilityInterceptor records request metrics and logs one line per
// call.
func ObservabilityInterceptor(metrics *observability.Metrics, log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		code := status.Code(err)

		if metrics != nil {
			metrics.APIRequests.WithLabelValues(method, code.String()).Inc()
			metrics.APIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}

		evt := log.Debug()
		switch code {
		case codes.OK, codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound,
			codes.AlreadyExists, codes.OutOfRange, codes.PermissionDenied, codes.Unauthenticated:
		default:
			evt = log.Error()
		}
		evt.Str("method", method).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("rpc")
		return resp, err
	}
}

// toStatus maps an engine or query error onto a gRPC status. The ledger
// error code is carried as the status message prefix.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	if errors.Is(err, core.ErrDuplicate) {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	if errors.Is(err, auth.ErrInvalidCredential) {
		return status.Error(codes.Unauthenticated, err.Error())
	}

	le, ok := ledger.AsError(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(codeFor(le), err.Error())
}

func codeFor(le *ledger.Error) codes.Code {
	switch le {
	case ledger.ErrAccountExists, ledger.ErrAlreadyAuthorized, ledger.ErrAuthorityInitialized:
		return codes.AlreadyExists
	}
	switch le.Category {
	case ledger.CategoryValidation:
		return codes.InvalidArgument
	case ledger.CategoryInsufficientFunds, ledger.CategoryState, ledger.CategoryRegistry:
		return codes.FailedPrecondition
	case ledger.CategoryArithmetic:
		return codes.OutOfRange
	case ledger.CategoryAuthorization:
		return codes.PermissionDenied
	case ledger.CategoryNotFound:
		return codes.NotFound
	case ledger.CategoryExternal:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
