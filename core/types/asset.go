package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	errs "poolhost/core/errors"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest representable base-unit amount.
const MaxAmount uint64 = 1<<62 - 1

const maxPrecision = 18

// Symbol identifies a token by code and decimal precision.
type Symbol struct {
	Code      string
	Precision uint8
}

// NewSymbol validates the code (1-7 upper-case letters) and precision.
func NewSymbol(code string, precision uint8) (Symbol, error) {
	sym := Symbol{Code: strings.ToUpper(strings.TrimSpace(code)), Precision: precision}
	if !sym.Valid() {
		return Symbol{}, fmt.Errorf("%w: %q precision %d", errs.ErrInvalidSymbol, code, precision)
	}
	return sym, nil
}

func (s Symbol) Valid() bool {
	if len(s.Code) == 0 || len(s.Code) > 7 || s.Precision > maxPrecision {
		return false
	}
	for _, r := range s.Code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// String renders the symbol as "<precision>,<code>".
func (s Symbol) String() string {
	return strconv.Itoa(int(s.Precision)) + "," + s.Code
}

// Asset is an amount of base units tagged with its symbol.
type Asset struct {
	Amount uint64
	Symbol Symbol
}

func NewAsset(amount uint64, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// ParseAsset parses "<amount> <CODE>", e.g. "100.0000 AIM". The number of
// fractional digits fixes the precision.
func ParseAsset(raw string) (Asset, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return Asset{}, fmt.Errorf("%w: malformed asset %q", errs.ErrInvalidAmount, raw)
	}
	number := fields[0]
	precision := 0
	if dot := strings.IndexByte(number, '.'); dot >= 0 {
		precision = len(number) - dot - 1
	}
	if precision > maxPrecision {
		return Asset{}, fmt.Errorf("%w: precision %d too large", errs.ErrInvalidSymbol, precision)
	}
	sym, err := NewSymbol(fields[1], uint8(precision))
	if err != nil {
		return Asset{}, err
	}
	value, err := decimal.NewFromString(number)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	if value.IsNegative() {
		return Asset{}, fmt.Errorf("%w: negative asset %q", errs.ErrInvalidAmount, raw)
	}
	units := value.Shift(int32(precision))
	if !units.BigInt().IsUint64() || units.BigInt().Uint64() > MaxAmount {
		return Asset{}, fmt.Errorf("%w: asset %q out of range", errs.ErrInvalidAmount, raw)
	}
	return Asset{Amount: units.BigInt().Uint64(), Symbol: sym}, nil
}

// String renders the asset with exactly Symbol.Precision fractional digits.
func (a Asset) String() string {
	value := decimal.NewFromBigInt(new(big.Int).SetUint64(a.Amount), -int32(a.Symbol.Precision))
	return value.StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}

func (a Asset) IsZero() bool { return a.Amount == 0 }

// Add sums two amounts of the same symbol, rejecting overflow past MaxAmount.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("%w: %s vs %s", errs.ErrInvalidSymbol, a.Symbol, b.Symbol)
	}
	sum, err := AddAmounts(a.Amount, b.Amount)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Amount: sum, Symbol: a.Symbol}, nil
}

// AddAmounts adds raw amounts, rejecting results above MaxAmount.
func AddAmounts(a, b uint64) (uint64, error) {
	if a > MaxAmount || b > MaxAmount-a {
		return 0, fmt.Errorf("%w: amount overflow", errs.ErrInvalidAmount)
	}
	return a + b, nil
}
