package pool

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestIsqrt(t *testing.T) {
	cases := []struct {
		n    uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{8, 2},
		{15, 3},
		{16, 4},
		{24, 4},
		{1_000_000_000, 31_622},
		{20_000_000_000, 141_421},
		{^uint64(0), 4_294_967_295},
	}
	for _, tc := range cases {
		if got := isqrt(tc.n); got != tc.want {
			t.Fatalf("isqrt(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestLockDurationShrinksWithCollateral(t *testing.T) {
	params := DefaultParams()
	if got := params.LockDuration(20_000_000_000); got != 403 {
		t.Fatalf("lock for 2,000,000 AIM = %d, want 403", got)
	}
	if got := params.LockDuration(params.MinCollateral); got != 1802 {
		t.Fatalf("lock for minimum collateral = %d, want 1802", got)
	}
	if params.LockDuration(40_000_000_000) >= params.LockDuration(20_000_000_000) {
		t.Fatalf("expected larger collateral to lock for less time")
	}
	if got := params.LockDuration(0); got != 0 {
		t.Fatalf("expected zero collateral to yield zero, got %d", got)
	}
}

func TestPercentRoundsDownOnce(t *testing.T) {
	half := decimal.RequireFromString("0.5")
	if got := percentOf(1_000_000_000, half); got != 5_000_000 {
		t.Fatalf("0.5%% of 1e9 = %d", got)
	}
	if got := percentOf(3, decimal.NewFromInt(50)); got != 1 {
		t.Fatalf("50%% of 3 = %d, want 1", got)
	}
	if got := percentOf(100, decimal.Zero); got != 0 {
		t.Fatalf("0%% should be zero, got %d", got)
	}
	if got := shareOf(1_000_000_000, decimal.NewFromInt(1), decimal.NewFromInt(50)); got != 5_000_000 {
		t.Fatalf("50%% of 1%% of 1e9 = %d", got)
	}
	// 1% of 199 is 1.99; flooring it before taking 60% would yield 0.
	if got := shareOf(199, decimal.NewFromInt(1), decimal.NewFromInt(60)); got != 1 {
		t.Fatalf("single floor expected 1, got %d", got)
	}
	if got := shareOf(1999, decimal.NewFromInt(1), decimal.Zero); got != 0 {
		t.Fatalf("zero share should be zero, got %d", got)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	params := DefaultParams()
	params.Escrow = params.Operator
	if err := params.Validate(); err == nil {
		t.Fatalf("expected shared system accounts to be rejected")
	}
	params = DefaultParams()
	params.FeeRate = decimal.NewFromInt(101)
	if err := params.Validate(); err == nil {
		t.Fatalf("expected fee rate above 100 to be rejected")
	}
	params = DefaultParams()
	params.MinCollateral = 0
	if err := params.Validate(); err == nil {
		t.Fatalf("expected zero minimum collateral to be rejected")
	}
}
