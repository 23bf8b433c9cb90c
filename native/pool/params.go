package pool

import (
	"fmt"
	"strings"

	"poolhost/core/types"

	"github.com/shopspring/decimal"
)

// Params holds the engine-wide constants. They are fixed for the lifetime of
// an Engine.
type Params struct {
	Symbol          types.Symbol
	FeeRate         decimal.Decimal
	MinCollateral   uint64
	LockCoefficient uint64
	LockScale       uint64
	Operator        string
	Escrow          string
	MainPool        string
	MainPoolReward  decimal.Decimal
}

// DefaultParams returns the production parameters.
func DefaultParams() Params {
	return Params{
		Symbol:          types.Symbol{Code: "AIM", Precision: 4},
		FeeRate:         decimal.RequireFromString("0.5"),
		MinCollateral:   1_000_000_000,
		LockCoefficient: 57_000,
		LockScale:       100_000,
		Operator:        "aim",
		Escrow:          "escrow.aim",
		MainPool:        "mainpool.aim",
		MainPoolReward:  decimal.RequireFromString("0.1"),
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if !p.Symbol.Valid() {
		return fmt.Errorf("pool params: invalid symbol %s", p.Symbol)
	}
	if !validPercent(p.FeeRate) {
		return fmt.Errorf("pool params: fee rate %s outside [0,100]", p.FeeRate)
	}
	if !validPercent(p.MainPoolReward) {
		return fmt.Errorf("pool params: main pool reward %s outside [0,100]", p.MainPoolReward)
	}
	if p.MinCollateral == 0 {
		return fmt.Errorf("pool params: minimum collateral must be positive")
	}
	if p.LockCoefficient == 0 || p.LockScale == 0 {
		return fmt.Errorf("pool params: lock coefficient and scale must be positive")
	}
	names := map[string]string{"operator": p.Operator, "escrow": p.Escrow, "main pool": p.MainPool}
	seen := make(map[string]string, len(names))
	for label, name := range names {
		if !types.ValidAccountName(strings.TrimSpace(name)) {
			return fmt.Errorf("pool params: invalid %s account %q", label, name)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("pool params: %s and %s share account %q", label, other, name)
		}
		seen[name] = label
	}
	return nil
}
