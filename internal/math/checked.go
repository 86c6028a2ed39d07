// internal/math/checked.go
package math

import "math/bits"

// AddU64 returns a + b and false if the sum does not fit in 64 bits.
func AddU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// SubU64 returns a - b and false if b > a.
func SubU64(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// MoveU64 shifts amount from one bucket to another, e.g. available to
// locked. Both results are computed before either is returned so callers
// can assign them together or not at all.
func MoveU64(from, to, amount uint64) (newFrom, newTo uint64, ok bool) {
	newFrom, ok = SubU64(from, amount)
	if !ok {
		return from, to, false
	}
	newTo, ok = AddU64(to, amount)
	if !ok {
		return from, to, false
	}
	return newFrom, newTo, true
}
