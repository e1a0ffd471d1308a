package vault

import (
	"math"
	"testing"
)

func TestDepositOverflows(t *testing.T) {
	cases := []struct {
		name     string
		current  uint64
		amt      uint64
		overflow bool
	}{
		{"small deposit", 0, 1000, false},
		{"fills to cap", maxStoredBalance - 1, 1, false},
		{"one past cap", maxStoredBalance, 1, true},
		{"amount alone past cap", 0, maxStoredBalance + 1, true},
		{"max amount on empty vault", 0, math.MaxUint64, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := depositOverflows(tc.current, tc.amt); got != tc.overflow {
				t.Errorf("depositOverflows(%d, %d) = %v, want %v", tc.current, tc.amt, got, tc.overflow)
			}
		})
	}
}
