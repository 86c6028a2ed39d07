// internal/math/fixedpoint.go
package math

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// DecimalConfig defines the minor-unit precision of an asset.
type DecimalConfig struct {
	DecimalPrecision int32 // Number of decimal places
}

var (
	// Standard configs
	StableConfig = DecimalConfig{DecimalPrecision: 6}  // 0.000001 USDT / USDC
	BTCConfig    = DecimalConfig{DecimalPrecision: 8}  // 1 satoshi
	ETHConfig    = DecimalConfig{DecimalPrecision: 18} // 1 wei
)

// DefaultDecimals is used when no override is configured for an asset.
var DefaultDecimals = map[string]DecimalConfig{
	"USDT": StableConfig,
	"USDC": StableConfig,
	"BTC":  BTCConfig,
	"ETH":  ETHConfig,
}

// ToDecimal converts a minor-unit amount to its display value.
func (c DecimalConfig) ToDecimal(amount uint64) decimal.Decimal {
	d, _ := decimal.NewFromString(strconv.FormatUint(amount, 10))
	return d.Shift(-c.DecimalPrecision)
}

// Format renders amount with exactly DecimalPrecision fractional digits.
func (c DecimalConfig) Format(amount uint64) string {
	return c.ToDecimal(amount).StringFixed(c.DecimalPrecision)
}

// ParseAmount converts a display string such as "12.5" into minor units.
// Values with more precision than the asset supports are rejected rather
// than rounded.
func (c DecimalConfig) ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: negative", s)
	}
	minor := d.Shift(c.DecimalPrecision)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("parse amount %q: more than %d decimals", s, c.DecimalPrecision)
	}
	v, err := strconv.ParseUint(minor.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
