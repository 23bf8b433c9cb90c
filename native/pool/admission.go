package pool

import (
	"context"
	"fmt"
	"strings"

	errs "poolhost/core/errors"
	"poolhost/core/types"

	"github.com/shopspring/decimal"
)

// PoolSpec describes a pool submitted for admission.
type PoolSpec struct {
	Name             string
	Owner            string
	Collateral       string
	RewardAccount    string
	Reward           decimal.Decimal
	Private          bool
	OwnerShare       decimal.Decimal
	HolderShare      decimal.Decimal
	CollateralAmount types.Asset
	Restricted       []string
}

// Initialize creates the main pool from the main-pool account's balance. It
// is a no-op once the main pool exists.
func (e *Engine) Initialize(ctx context.Context, auth Auth) error {
	return e.execute(ctx, "initialize", auth, true, func(act *action) error {
		if err := e.requireSigner(act, e.params.Operator); err != nil {
			return err
		}
		_, exists, err := e.state.PoolByID(MainPoolID)
		if err != nil || exists {
			return err
		}
		balance, ok, err := e.state.Balance(e.params.MainPool)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: main pool account %s holds no tokens", errs.ErrNotFound, e.params.MainPool)
		}
		main := &Pool{
			ID:               MainPoolID,
			Name:             e.params.MainPool,
			Owner:            e.params.MainPool,
			Collateral:       e.params.MainPool,
			RewardAccount:    e.params.MainPool,
			Reward:           e.params.MainPoolReward,
			OwnerShare:       hundred,
			HolderShare:      decimal.Zero,
			CollateralAmount: balance,
			Total:            balance,
			Available:        balance,
			CreatedAt:        act.now,
			Active:           true,
		}
		if err := e.state.PutPool(main); err != nil {
			return err
		}
		act.emit(newPoolEvent(EventTypeInitialized, main))
		return nil
	})
}

// AddPool admits a new pool and stakes its collateral.
func (e *Engine) AddPool(ctx context.Context, auth Auth, spec PoolSpec) (*Pool, error) {
	var created *Pool
	err := e.execute(ctx, "addpool", auth, true, func(act *action) error {
		spec.Name = types.NormalizeAccountName(spec.Name)
		if !types.ValidAccountName(spec.Name) {
			return fmt.Errorf("%w: pool %q", errs.ErrInvalidName, spec.Name)
		}
		if _, ok, err := e.state.PoolByID(MainPoolID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: main pool not initialized", errs.ErrNotFound)
		}
		if _, ok, err := e.state.PoolByName(spec.Name); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: pool %s already exists", errs.ErrDuplicateEntity, spec.Name)
		}
		for _, account := range []string{spec.Name, spec.Owner, spec.Collateral, spec.RewardAccount} {
			if err := e.requireAccount(account); err != nil {
				return err
			}
		}
		if _, staked, err := e.state.StakeOf(spec.Collateral); err != nil {
			return err
		} else if staked {
			return fmt.Errorf("%w: collateral account %s already backs a pool", errs.ErrDuplicateEntity, spec.Collateral)
		}
		if err := e.validateTokens(spec.CollateralAmount); err != nil {
			return err
		}
		if spec.CollateralAmount.Amount < e.params.MinCollateral {
			return fmt.Errorf("%w: collateral %s below minimum %s", errs.ErrInvalidAmount,
				spec.CollateralAmount, types.NewAsset(e.params.MinCollateral, e.params.Symbol))
		}
		if err := validateRates(spec.Reward, spec.OwnerShare, spec.HolderShare); err != nil {
			return err
		}
		if err := e.requireBalance(spec.Collateral, spec.CollateralAmount.Amount, "collateral account"); err != nil {
			return err
		}
		id, err := e.state.NextPoolID()
		if err != nil {
			return err
		}
		p := &Pool{
			ID:               id,
			Name:             spec.Name,
			Owner:            spec.Owner,
			Collateral:       spec.Collateral,
			RewardAccount:    spec.RewardAccount,
			Reward:           spec.Reward,
			Private:          spec.Private,
			OwnerShare:       spec.OwnerShare,
			HolderShare:      spec.HolderShare,
			CollateralAmount: spec.CollateralAmount.Amount,
			LockSeconds:      e.params.LockDuration(spec.CollateralAmount.Amount),
			CreatedAt:        act.now,
			Active:           true,
			Restricted:       normalizeRestricted(spec.Restricted),
		}
		if err := e.state.PutPool(p); err != nil {
			return err
		}
		if err := e.state.PutStake(&Stake{Collateral: p.Collateral, Amount: p.CollateralAmount, CreatedAt: act.now}); err != nil {
			return err
		}
		act.emit(newPoolEvent(EventTypePoolCreated, p))
		created = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func validateRates(reward, ownerShare, holderShare decimal.Decimal) error {
	if !validPercent(reward) {
		return fmt.Errorf("%w: reward rate %s outside [0,100]", errs.ErrInvalidAmount, reward)
	}
	if !validPercent(ownerShare) || !validPercent(holderShare) {
		return fmt.Errorf("%w: shares %s/%s outside [0,100]", errs.ErrInvalidAmount, ownerShare, holderShare)
	}
	if ownerShare.Add(holderShare).GreaterThan(hundred) {
		return fmt.Errorf("%w: owner and holder shares exceed 100", errs.ErrInvalidAmount)
	}
	return nil
}

func normalizeRestricted(accounts []string) []string {
	out := make([]string, 0, len(accounts))
	seen := make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		account = strings.TrimSpace(account)
		if account == "" {
			continue
		}
		if _, dup := seen[account]; dup {
			continue
		}
		seen[account] = struct{}{}
		out = append(out, account)
	}
	return out
}

// ChangePoolFee updates the reward rate charged by an active pool.
func (e *Engine) ChangePoolFee(ctx context.Context, auth Auth, poolName string, rate decimal.Decimal) error {
	return e.execute(ctx, "chngepoolfee", auth, true, func(act *action) error {
		p, err := e.loadActivePool(poolName)
		if err != nil {
			return err
		}
		if err := e.requireSigner(act, p.Owner); err != nil {
			return err
		}
		if !validPercent(rate) {
			return fmt.Errorf("%w: reward rate %s outside [0,100]", errs.ErrInvalidAmount, rate)
		}
		p.Reward = rate
		if err := e.state.PutPool(p); err != nil {
			return err
		}
		act.emit(newPoolEvent(EventTypePoolFeeChanged, p))
		return nil
	})
}

// TerminatePool pays every holder out, deactivates the pool and releases its
// collateral stake. Holders with tokens still out block termination.
func (e *Engine) TerminatePool(ctx context.Context, auth Auth, poolName string) error {
	return e.execute(ctx, "trminatepool", auth, true, func(act *action) error {
		p, err := e.loadActivePool(poolName)
		if err != nil {
			return err
		}
		if err := e.requireSigner(act, p.Owner); err != nil {
			return err
		}
		if p.ID == MainPoolID {
			return fmt.Errorf("%w: the main pool cannot be terminated", errs.ErrUnauthorized)
		}
		_, funded, err := e.state.Balance(p.Name)
		if err != nil {
			return err
		}
		if funded {
			if err := e.payOutHolders(act, p); err != nil {
				return err
			}
		}
		p.Active = false
		p.Total = 0
		p.Available = 0
		p.OwnerReward = 0
		if err := e.state.PutPool(p); err != nil {
			return err
		}
		if err := e.state.DeleteStake(p.Collateral); err != nil {
			return err
		}
		act.emit(newPoolEvent(EventTypePoolTerminated, p))
		return nil
	})
}

func (e *Engine) payOutHolders(act *action, p *Pool) error {
	holders, err := e.state.HoldersByRecency(p.Name)
	if err != nil {
		return err
	}
	var principal, rewards uint64
	active := make([]*Holder, 0, len(holders))
	for _, h := range holders {
		if !h.Active {
			continue
		}
		if h.Remaining != h.Contributed {
			return fmt.Errorf("%w: holder %s of pool %s has tokens in use", errs.ErrTokensLocked, h.Holder, p.Name)
		}
		if principal, err = types.AddAmounts(principal, h.Contributed); err != nil {
			return err
		}
		if rewards, err = types.AddAmounts(rewards, h.Reward); err != nil {
			return err
		}
		active = append(active, h)
	}
	if err := e.requireBalance(p.Name, principal, "pool"); err != nil {
		return err
	}
	owed, err := types.AddAmounts(rewards, p.OwnerReward)
	if err != nil {
		return err
	}
	if err := e.requireBalance(p.RewardAccount, owed, "reward account"); err != nil {
		return err
	}
	for _, h := range active {
		if err := e.moveInternal(p.Name, h.Holder, h.Contributed, "pool terminated"); err != nil {
			return err
		}
		if err := e.moveInternal(p.RewardAccount, h.Holder, h.Reward, "pool terminated reward"); err != nil {
			return err
		}
		if h.Reward > 0 {
			act.emit(newRewardPaidEvent(p.Name, h.Holder, "holder", h.Reward))
		}
		h.Contributed, h.Remaining, h.Reward = 0, 0, 0
		h.Active = false
		if err := e.state.PutHolder(h); err != nil {
			return err
		}
	}
	if err := e.moveInternal(p.RewardAccount, p.Owner, p.OwnerReward, "pool terminated owner reward"); err != nil {
		return err
	}
	if p.OwnerReward > 0 {
		act.emit(newRewardPaidEvent(p.Name, p.Owner, "owner", p.OwnerReward))
	}
	return nil
}
