package ledger

import "errors"

// ErrorCategory groups rejections by how a caller should react to them.
type ErrorCategory uint8

const (
	CategoryValidation ErrorCategory = iota + 1
	CategoryInsufficientFunds
	CategoryArithmetic
	CategoryAuthorization
	CategoryState
	CategoryRegistry
	CategoryNotFound
	CategoryExternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryInsufficientFunds:
		return "insufficient_funds"
	case CategoryArithmetic:
		return "arithmetic"
	case CategoryAuthorization:
		return "authorization"
	case CategoryState:
		return "state"
	case CategoryRegistry:
		return "registry"
	case CategoryNotFound:
		return "not_found"
	case CategoryExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Error is a ledger rejection. Every Error aborts the transition it was
// returned from with no state change.
type Error struct {
	Code     string
	Category ErrorCategory
	Message  string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(category ErrorCategory, code, message string) *Error {
	return &Error{Code: code, Category: category, Message: message}
}

var (
	// Validation
	ErrInvalidAmount = newError(CategoryValidation, "InvalidAmount", "invalid amount - must be greater than zero")

	// Insufficient funds
	ErrInsufficientAvailable = newError(CategoryInsufficientFunds, "InsufficientAvailable", "insufficient available balance")
	ErrInsufficientLocked    = newError(CategoryInsufficientFunds, "InsufficientLocked", "insufficient locked balance")

	// Arithmetic
	ErrOverflow  = newError(CategoryArithmetic, "Overflow", "arithmetic overflow")
	ErrUnderflow = newError(CategoryArithmetic, "Underflow", "arithmetic underflow")

	// Authorization
	ErrUnauthorized       = newError(CategoryAuthorization, "Unauthorized", "caller is not the owner or admin")
	ErrUnauthorizedCaller = newError(CategoryAuthorization, "UnauthorizedCaller", "caller is not an authorized program")

	// State
	ErrAccountNotEmpty         = newError(CategoryState, "AccountNotEmpty", "account is not empty - cannot close")
	ErrHasReservedFunds        = newError(CategoryState, "HasReservedFunds", "account has locked collateral - unlock before closing")
	ErrInvalidAssetKind        = newError(CategoryState, "InvalidAssetKind", "invalid asset kind - does not match account asset")
	ErrAccountExists           = newError(CategoryState, "AccountExists", "account already initialized")
	ErrSameAccount             = newError(CategoryState, "SameAccount", "source and destination account are the same")
	ErrAuthorityInitialized    = newError(CategoryState, "AuthorityInitialized", "authority registry already initialized")
	ErrAuthorityNotInitialized = newError(CategoryState, "AuthorityNotInitialized", "authority registry not initialized")
	ErrAccountNotFound         = newError(CategoryNotFound, "AccountNotFound", "account not found")

	// Registry
	ErrTooManyCallers    = newError(CategoryRegistry, "TooManyCallers", "too many programs - maximum 10 allowed")
	ErrAlreadyAuthorized = newError(CategoryRegistry, "AlreadyAuthorized", "program already authorized")

	// External
	ErrTransferFailed = newError(CategoryExternal, "TransferFailed", "custody transfer failed")
)

// AsError extracts the ledger error from a wrapped chain.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsRejection reports whether err is a deterministic business rejection
// (retrying the same request will fail the same way). Custody failures
// and infrastructure errors are not rejections.
func IsRejection(err error) bool {
	le, ok := AsError(err)
	if !ok {
		return false
	}
	return le.Category != CategoryExternal
}

// Code returns the ledger error code for err, or "internal".
func Code(err error) string {
	if le, ok := AsError(err); ok {
		return le.Code
	}
	return "internal"
}
