package ledger

import (
	vmath "VaultLedger/internal/math"
	"errors"
	"fmt"
)

// ErrInvariantViolated marks a post-check failure. It indicates a bug,
// never a caller mistake.
var ErrInvariantViolated = errors.New("ledger invariant violated")

// InvariantValidator checks account invariants after every transition
type InvariantValidator struct{}

func NewInvariantValidator() *InvariantValidator {
	return &InvariantValidator{}
}

// ValidateBalance verifies available + locked == total
func (v *InvariantValidator) ValidateBalance(a *Account) error {
	sum, ok := vmath.AddU64(a.Available, a.Locked)
	if !ok || sum != a.Total {
		return fmt.Errorf("%w: %s available=%d locked=%d total=%d",
			ErrInvariantViolated, a.Key(), a.Available, a.Locked, a.Total)
	}
	return nil
}

// ValidateTransition verifies immutable fields survived the transition and
// lifetime counters only moved forward.
func (v *InvariantValidator) ValidateTransition(before, after *Account) error {
	if err := v.ValidateBalance(after); err != nil {
		return err
	}
	if before.ID != after.ID ||
		before.Owner != after.Owner ||
		before.AssetKind != after.AssetKind ||
		before.AssetLocation != after.AssetLocation ||
		!before.CreatedAt.Equal(after.CreatedAt) {
		return fmt.Errorf("%w: immutable field changed on %s", ErrInvariantViolated, before.Key())
	}
	if after.LifetimeDeposited < before.LifetimeDeposited || after.LifetimeWithdrawn < before.LifetimeWithdrawn {
		return fmt.Errorf("%w: lifetime counter decreased on %s", ErrInvariantViolated, before.Key())
	}
	return nil
}

// ValidateConservation verifies a transfer moved value without creating or
// destroying it.
func (v *InvariantValidator) ValidateConservation(srcBefore, dstBefore, srcAfter, dstAfter *Account) error {
	debited, ok1 := vmath.SubU64(srcBefore.Total, srcAfter.Total)
	credited, ok2 := vmath.SubU64(dstAfter.Total, dstBefore.Total)
	if !ok1 || !ok2 || debited != credited {
		return fmt.Errorf("%w: transfer %s -> %s debited %d but credited %d",
			ErrInvariantViolated, srcBefore.Key(), dstBefore.Key(), debited, credited)
	}
	return nil
}
