package pool

import (
	"context"
	"fmt"

	errs "poolhost/core/errors"
)

var errNothingPayable = fmt.Errorf("%w: reward balance is zero", errs.ErrInvalidAmount)

// WithdrawHolderReward pays a holder the reward accrued in one pool.
func (e *Engine) WithdrawHolderReward(ctx context.Context, auth Auth, holder, poolName string) (uint64, error) {
	var paid uint64
	err := e.execute(ctx, "wtdrwtknhldr", auth, true, func(act *action) error {
		if err := e.requireSigner(act, holder); err != nil {
			return err
		}
		p, err := e.loadPool(poolName)
		if err != nil {
			return err
		}
		h, ok, err := e.state.HolderByPair(p.Name, holder)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s holds no position in %s", errs.ErrNotFound, holder, p.Name)
		}
		if h.Reward == 0 {
			return errNothingPayable
		}
		paid, err = e.payHolder(act, p, h)
		return err
	})
	return paid, err
}

// WithdrawOwnerReward pays an owner the reward accrued across all of its pools.
func (e *Engine) WithdrawOwnerReward(ctx context.Context, auth Auth, owner string) (uint64, error) {
	var paid uint64
	err := e.execute(ctx, "wtdrwtknownr", auth, true, func(act *action) error {
		if err := e.requireSigner(act, owner); err != nil {
			return err
		}
		pools, err := e.state.PoolsByOwner(owner)
		if err != nil {
			return err
		}
		if len(pools) == 0 {
			return fmt.Errorf("%w: %s owns no pools", errs.ErrNotFound, owner)
		}
		for _, p := range pools {
			amount, err := e.payOwner(act, p)
			if err != nil {
				return err
			}
			paid += amount
		}
		if paid == 0 {
			return errNothingPayable
		}
		return nil
	})
	return paid, err
}

// PayRewards pushes the owner reward and every holder reward of a pool out in
// one pass.
func (e *Engine) PayRewards(ctx context.Context, auth Auth, poolName, owner string) (uint64, error) {
	var paid uint64
	err := e.execute(ctx, "payrewards", auth, true, func(act *action) error {
		if err := e.requireSigner(act, owner); err != nil {
			return err
		}
		p, err := e.loadPool(poolName)
		if err != nil {
			return err
		}
		if p.Owner != owner {
			return fmt.Errorf("%w: %s does not own pool %s", errs.ErrUnauthorized, owner, p.Name)
		}
		amount, err := e.payOwner(act, p)
		if err != nil {
			return err
		}
		paid += amount
		holders, err := e.state.HoldersByRecency(p.Name)
		if err != nil {
			return err
		}
		for _, h := range holders {
			if h.Reward == 0 {
				continue
			}
			amount, err := e.payHolder(act, p, h)
			if err != nil {
				return err
			}
			paid += amount
		}
		if paid == 0 {
			return errNothingPayable
		}
		return nil
	})
	return paid, err
}

func (e *Engine) payHolder(act *action, p *Pool, h *Holder) (uint64, error) {
	amount := h.Reward
	if err := e.requireBalance(p.RewardAccount, amount, "reward account"); err != nil {
		return 0, err
	}
	if err := e.moveInternal(p.RewardAccount, h.Holder, amount, "holder reward"); err != nil {
		return 0, err
	}
	h.Reward = 0
	if err := e.state.PutHolder(h); err != nil {
		return 0, err
	}
	act.emit(newRewardPaidEvent(p.Name, h.Holder, "holder", amount))
	return amount, nil
}

func (e *Engine) payOwner(act *action, p *Pool) (uint64, error) {
	amount := p.OwnerReward
	if amount == 0 {
		return 0, nil
	}
	if err := e.requireBalance(p.RewardAccount, amount, "reward account"); err != nil {
		return 0, err
	}
	if err := e.moveInternal(p.RewardAccount, p.Owner, amount, "owner reward"); err != nil {
		return 0, err
	}
	p.OwnerReward = 0
	if err := e.state.PutPool(p); err != nil {
		return 0, err
	}
	act.emit(newRewardPaidEvent(p.Name, p.Owner, "owner", amount))
	return amount, nil
}
