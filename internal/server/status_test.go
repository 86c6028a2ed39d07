package server

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/core"
	"VaultLedger/internal/ledger"
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{ledger.ErrInvalidAmount, codes.InvalidArgument},
		{ledger.ErrInsufficientAvailable, codes.FailedPrecondition},
		{ledger.ErrHasReservedFunds, codes.FailedPrecondition},
		{ledger.ErrTooManyCallers, codes.FailedPrecondition},
		{ledger.ErrOverflow, codes.OutOfRange},
		{ledger.ErrUnauthorizedCaller, codes.PermissionDenied},
		{ledger.ErrAccountNotFound, codes.NotFound},
		{ledger.ErrAccountExists, codes.AlreadyExists},
		{ledger.ErrAlreadyAuthorized, codes.AlreadyExists},
		{fmt.Errorf("%w: transfer: %w", ledger.ErrTransferFailed, errors.New("offline")), codes.Unavailable},
		{fmt.Errorf("deposit: %w", core.ErrDuplicate), codes.AlreadyExists},
		{auth.ErrInvalidCredential, codes.Unauthenticated},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Aborted, "already a status"), codes.Aborted},
		{errors.New("disk full"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("%v: got %s, want %s", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestToStatus_CarriesLedgerCode(t *testing.T) {
	st := status.Convert(toStatus(ledger.ErrInsufficientLocked))
	if st.Message() != "InsufficientLocked: insufficient locked balance" {
		t.Errorf("message: %q", st.Message())
	}
}
