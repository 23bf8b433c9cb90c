package config

import (
	"fmt"
	"strconv"
	"strings"

	"poolhost/core/types"
	"poolhost/native/pool"

	"github.com/shopspring/decimal"
)

// GenesisBalance is a parsed genesis account.
type GenesisBalance struct {
	Account string
	Amount  uint64
}

// Validate checks every section and that the pool parameters resolve.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	params, err := cfg.PoolParams()
	if err != nil {
		return err
	}
	switch cfg.Storage.Backend {
	case "memory":
	case "leveldb", "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Admin.ListenAddress == "" {
		return fmt.Errorf("admin: listen address required")
	}
	if secret := cfg.Admin.AuthSecret; secret != "" && len(secret) < 16 {
		return fmt.Errorf("admin: auth secret must be at least 16 bytes")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}
	if _, err := cfg.GenesisBalances(params.Symbol); err != nil {
		return err
	}
	return nil
}

// PoolParams converts the pool section into engine parameters.
func (cfg *Config) PoolParams() (pool.Params, error) {
	p := cfg.Pool
	symbol, err := parseSymbol(p.Symbol)
	if err != nil {
		return pool.Params{}, fmt.Errorf("pool.symbol: %w", err)
	}
	feeRate, err := decimal.NewFromString(p.FeeRate)
	if err != nil {
		return pool.Params{}, fmt.Errorf("pool.fee_rate: %w", err)
	}
	mainReward, err := decimal.NewFromString(p.MainPoolReward)
	if err != nil {
		return pool.Params{}, fmt.Errorf("pool.main_pool_reward: %w", err)
	}
	minCollateral, err := types.ParseAsset(p.MinCollateral)
	if err != nil {
		return pool.Params{}, fmt.Errorf("pool.min_collateral: %w", err)
	}
	if minCollateral.Symbol != symbol {
		return pool.Params{}, fmt.Errorf("pool.min_collateral: symbol %s does not match %s", minCollateral.Symbol, symbol)
	}
	params := pool.Params{
		Symbol:          symbol,
		FeeRate:         feeRate,
		MinCollateral:   minCollateral.Amount,
		LockCoefficient: p.LockCoefficient,
		LockScale:       p.LockScale,
		Operator:        p.Operator,
		Escrow:          p.Escrow,
		MainPool:        p.MainPool,
		MainPoolReward:  mainReward,
	}
	if err := params.Validate(); err != nil {
		return pool.Params{}, err
	}
	return params, nil
}

// GenesisBalances parses the genesis section. Accounts may be listed with an
// empty balance to be created unfunded.
func (cfg *Config) GenesisBalances(symbol types.Symbol) ([]GenesisBalance, error) {
	out := make([]GenesisBalance, 0, len(cfg.Genesis))
	seen := make(map[string]struct{}, len(cfg.Genesis))
	for i, account := range cfg.Genesis {
		if !types.ValidAccountName(account.Name) {
			return nil, fmt.Errorf("genesis[%d]: invalid account name %q", i, account.Name)
		}
		if _, dup := seen[account.Name]; dup {
			return nil, fmt.Errorf("genesis[%d]: duplicate account %s", i, account.Name)
		}
		seen[account.Name] = struct{}{}
		entry := GenesisBalance{Account: account.Name}
		if account.Balance != "" {
			asset, err := types.ParseAsset(account.Balance)
			if err != nil {
				return nil, fmt.Errorf("genesis[%d]: %w", i, err)
			}
			if asset.Symbol != symbol {
				return nil, fmt.Errorf("genesis[%d]: symbol %s does not match %s", i, asset.Symbol, symbol)
			}
			entry.Amount = asset.Amount
		}
		out = append(out, entry)
	}
	return out, nil
}

// parseSymbol accepts "4,AIM".
func parseSymbol(raw string) (types.Symbol, error) {
	precision, code, ok := strings.Cut(raw, ",")
	if !ok {
		return types.Symbol{}, fmt.Errorf("expected <precision>,<code>, got %q", raw)
	}
	digits, err := strconv.ParseUint(strings.TrimSpace(precision), 10, 8)
	if err != nil {
		return types.Symbol{}, fmt.Errorf("invalid precision %q", precision)
	}
	return types.NewSymbol(strings.TrimSpace(code), uint8(digits))
}
