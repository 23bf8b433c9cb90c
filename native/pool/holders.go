package pool

import (
	"context"
	"fmt"

	errs "poolhost/core/errors"
	"poolhost/core/types"
)

// JoinPool moves tokens from holder into the pool and records the position.
// Joining again merges into the existing row.
func (e *Engine) JoinPool(ctx context.Context, auth Auth, poolName, holder string, tokens types.Asset) error {
	return e.execute(ctx, "addpoolholdr", auth, true, func(act *action) error {
		return e.contribute(act, poolName, holder, tokens, false)
	})
}

// LendMore adds tokens to an existing active position.
func (e *Engine) LendMore(ctx context.Context, auth Auth, poolName, holder string, tokens types.Asset) error {
	return e.execute(ctx, "lendmoretkns", auth, true, func(act *action) error {
		return e.contribute(act, poolName, holder, tokens, true)
	})
}

func (e *Engine) contribute(act *action, poolName, holder string, tokens types.Asset, existingOnly bool) error {
	if err := e.requireSigner(act, holder); err != nil {
		return err
	}
	p, err := e.loadActivePool(poolName)
	if err != nil {
		return err
	}
	if err := e.validateTokens(tokens); err != nil {
		return err
	}
	if err := e.requireAccount(holder); err != nil {
		return err
	}
	row, found, err := e.state.HolderByPair(p.Name, holder)
	if err != nil {
		return err
	}
	if existingOnly && (!found || !row.Active) {
		return fmt.Errorf("%w: %s holds no active position in %s", errs.ErrNotFound, holder, p.Name)
	}
	if err := e.requireBalance(holder, tokens.Amount, "holder"); err != nil {
		return err
	}
	total, err := types.AddAmounts(p.Total, tokens.Amount)
	if err != nil {
		return err
	}
	available, err := types.AddAmounts(p.Available, tokens.Amount)
	if err != nil {
		return err
	}
	if err := e.moveAuthorized(act, holder, p.Name, tokens.Amount, "pool contribution"); err != nil {
		return err
	}
	if !found {
		id, err := e.state.NextHolderID()
		if err != nil {
			return err
		}
		row = &Holder{
			ID:         id,
			PoolID:     p.ID,
			Pool:       p.Name,
			Holder:     holder,
			LastUsedAt: act.now,
			CreatedAt:  act.now,
		}
	}
	if row.Contributed, err = types.AddAmounts(row.Contributed, tokens.Amount); err != nil {
		return err
	}
	if row.Remaining, err = types.AddAmounts(row.Remaining, tokens.Amount); err != nil {
		return err
	}
	row.Active = true
	if err := e.state.PutHolder(row); err != nil {
		return err
	}
	p.Total = total
	p.Available = available
	if err := e.state.PutPool(p); err != nil {
		return err
	}
	act.emit(newHolderEvent(EventTypeHolderJoined, row, tokens.Amount))
	return nil
}

// LeavePool returns a holder's principal and accrued reward. Every token the
// holder contributed must be back in the pool.
func (e *Engine) LeavePool(ctx context.Context, auth Auth, poolName, holder string) error {
	return e.execute(ctx, "leavepool", auth, true, func(act *action) error {
		if err := e.requireSigner(act, holder); err != nil {
			return err
		}
		p, err := e.loadActivePool(poolName)
		if err != nil {
			return err
		}
		row, found, err := e.state.HolderByPair(p.Name, holder)
		if err != nil {
			return err
		}
		if !found || !row.Active {
			return fmt.Errorf("%w: %s holds no active position in %s", errs.ErrNotFound, holder, p.Name)
		}
		if row.Remaining != row.Contributed {
			return fmt.Errorf("%w: %d of %d tokens still in use", errs.ErrTokensLocked,
				row.Contributed-row.Remaining, row.Contributed)
		}
		if err := e.requireBalance(p.Name, row.Contributed, "pool"); err != nil {
			return err
		}
		if err := e.requireBalance(p.RewardAccount, row.Reward, "reward account"); err != nil {
			return err
		}
		if p.Total < row.Contributed || p.Available < row.Contributed {
			return fmt.Errorf("%w: pool %s aggregates below holder principal", errs.ErrInsufficientBalance, p.Name)
		}
		if err := e.moveInternal(p.Name, holder, row.Contributed, "pool exit"); err != nil {
			return err
		}
		if err := e.moveInternal(p.RewardAccount, holder, row.Reward, "pool exit reward"); err != nil {
			return err
		}
		p.Total -= row.Contributed
		p.Available -= row.Contributed
		if err := e.state.PutPool(p); err != nil {
			return err
		}
		left := row.Contributed
		row.Contributed, row.Remaining, row.Reward = 0, 0, 0
		row.Active = false
		if err := e.state.PutHolder(row); err != nil {
			return err
		}
		act.emit(newHolderEvent(EventTypeHolderLeft, row, left))
		return nil
	})
}
