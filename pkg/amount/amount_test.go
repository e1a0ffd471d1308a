package amount_test

import (
	"errors"
	"testing"

	"github.com/dperdic/s3-asset-manager-vault/pkg/amount"
)

func TestToSmallestUnit(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     uint64
	}{
		{"3.123", 3, 3123},
		{"3.123", 6, 3123000},
		{"3", 3, 3000},
		{"0.001", 3, 1},
		{"0", 0, 0},
		{"100000", 0, 100000},
		{".5", 1, 5},
		{"12.", 2, 1200},
		{"3.1239", 3, 3123}, // extra precision truncates toward zero
		{"18446744073709551615", 0, 18446744073709551615},
	}
	for _, tc := range cases {
		got, err := amount.ToSmallestUnit(tc.in, tc.decimals)
		if err != nil {
			t.Errorf("ToSmallestUnit(%q, %d): %v", tc.in, tc.decimals, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ToSmallestUnit(%q, %d) = %d, want %d", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestToSmallestUnit_rejects(t *testing.T) {
	bad := []string{"", ".", "-1", "1e5", "1.2.3", "abc", "1,5", " 1"}
	for _, in := range bad {
		if _, err := amount.ToSmallestUnit(in, 3); err == nil {
			t.Errorf("ToSmallestUnit(%q) accepted invalid input", in)
		}
	}
}

func TestToSmallestUnit_overflow(t *testing.T) {
	_, err := amount.ToSmallestUnit("18446744073709551616", 0)
	if !errors.Is(err, amount.ErrAmountOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	_, err = amount.ToSmallestUnit("18446744073709551615", 1)
	if !errors.Is(err, amount.ErrAmountOverflow) {
		t.Errorf("expected overflow after scaling, got %v", err)
	}
}

func TestFromSmallestUnit(t *testing.T) {
	cases := []struct {
		in       uint64
		decimals uint8
		want     string
	}{
		{3123, 3, "3.123"},
		{3123, 0, "3123"},
		{1, 3, "0.001"},
		{0, 2, "0.00"},
	}
	for _, tc := range cases {
		if got := amount.FromSmallestUnit(tc.in, tc.decimals); got != tc.want {
			t.Errorf("FromSmallestUnit(%d, %d) = %q, want %q", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	units, err := amount.ToSmallestUnit("3.123", 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s := amount.FromSmallestUnit(units, 3); s != "3.123" {
		t.Errorf("round trip = %q", s)
	}
}
