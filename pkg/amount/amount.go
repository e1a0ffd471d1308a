// Package amount converts boundary decimal amounts into the integer smallest
// units the ledger operates on. All internal accounting is uint64 smallest
// units; this package is the only place a human-readable decimal is touched,
// and it never goes through floating point.
package amount

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxDecimals bounds asset precision. 10^19 overflows uint64, so 19 is the
// largest usable scale.
const MaxDecimals = 19

var (
	// ErrInvalidAmount is returned for strings that are not a plain
	// non-negative decimal number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountOverflow is returned when the scaled value does not fit in
	// a uint64.
	ErrAmountOverflow = errors.New("amount overflows smallest-unit range")
)

// ToSmallestUnit parses a non-negative decimal string ("3.123") into an
// integer count of smallest units at the given precision. Fractional digits
// beyond the asset's precision are truncated, deterministically, toward zero.
func ToSmallestUnit(s string, decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: precision %d exceeds %d", ErrInvalidAmount, decimals, MaxDecimals)
	}
	whole, frac, ok := splitDecimal(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	// Truncate or right-pad the fractional part to exactly `decimals` digits.
	if len(frac) > int(decimals) {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	units, err := parseUint(whole)
	if err != nil {
		return 0, err
	}
	scale := pow10(decimals)
	if scale != 1 && units > math.MaxUint64/scale {
		return 0, ErrAmountOverflow
	}
	units *= scale

	fracUnits, err := parseUint(frac)
	if err != nil {
		return 0, err
	}
	if units > math.MaxUint64-fracUnits {
		return 0, ErrAmountOverflow
	}
	return units + fracUnits, nil
}

// FromSmallestUnit renders an integer smallest-unit count as a decimal string
// at the given precision, e.g. 3123 at 3 decimals -> "3.123".
func FromSmallestUnit(v uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", v)
	}
	scale := pow10(decimals)
	whole := v / scale
	frac := v % scale
	return fmt.Sprintf("%d.%0*d", whole, decimals, frac)
}

// splitDecimal breaks "12.34" into ("12", "34"). Accepts "12", ".5" and
// "12.". Rejects signs, exponents, and anything non-digit.
func splitDecimal(s string) (whole, frac string, ok bool) {
	if s == "" || s == "." {
		return "", "", false
	}
	whole, frac, found := strings.Cut(s, ".")
	if !found {
		frac = ""
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return "", "", false
			}
		}
	}
	if whole == "" {
		whole = "0"
	}
	return whole, frac, true
}

// parseUint parses a digit string without strconv's sign/base handling.
// Empty input parses as zero.
func parseUint(digits string) (uint64, error) {
	var v uint64
	for _, r := range digits {
		d := uint64(r - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, ErrAmountOverflow
		}
		v = v*10 + d
	}
	return v, nil
}

func pow10(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}
