package token

import (
	"math"
	"testing"
)

func TestCreditOverflows(t *testing.T) {
	cases := []struct {
		name     string
		current  uint64
		amt      uint64
		overflow bool
	}{
		{"zero credit", 0, 0, false},
		{"small credit", 100, 50, false},
		{"exactly at cap", 0, maxStoredBalance, false},
		{"fills to cap", maxStoredBalance - 1, 1, false},
		{"one past cap", maxStoredBalance, 1, true},
		{"amount alone past cap", 0, maxStoredBalance + 1, true},
		{"max amount on empty account", 0, math.MaxUint64, true},
		{"max amount on funded account", 100, math.MaxUint64, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := creditOverflows(tc.current, tc.amt); got != tc.overflow {
				t.Errorf("creditOverflows(%d, %d) = %v, want %v", tc.current, tc.amt, got, tc.overflow)
			}
		})
	}
}
