package pool

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// isqrt returns floor(sqrt(n)) by Newton iteration starting from n/2. The
// estimate decreases monotonically until it settles; stopping on the first
// non-decrease avoids the two-value cycle hit when n+1 is a perfect square.
func isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	guess := n / 2
	for {
		next := (n/guess + guess) / 2
		if next >= guess {
			return guess
		}
		guess = next
	}
}

// LockDuration returns the re-lock period in seconds for a pool backed by
// collateral base units. Larger collateral yields shorter locks.
func (p Params) LockDuration(collateral uint64) uint64 {
	root := isqrt(collateral) * 100
	if root == 0 {
		return 0
	}
	return p.LockCoefficient * p.LockScale / root
}

// percentOf returns floor(amount * pct / 100).
func percentOf(amount uint64, pct decimal.Decimal) uint64 {
	if amount == 0 || pct.Sign() <= 0 {
		return 0
	}
	return floorUnits(fromUnits(amount).Mul(pct).Shift(-2))
}

// shareOf applies two percentages to amount and rounds down once, on the
// final product.
func shareOf(amount uint64, rate, share decimal.Decimal) uint64 {
	if amount == 0 || rate.Sign() <= 0 || share.Sign() <= 0 {
		return 0
	}
	return floorUnits(fromUnits(amount).Mul(rate).Mul(share).Shift(-4))
}

func fromUnits(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
}

func floorUnits(d decimal.Decimal) uint64 {
	floored := d.Floor()
	if floored.Sign() <= 0 {
		return 0
	}
	return floored.BigInt().Uint64()
}

func validPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(hundred)
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
