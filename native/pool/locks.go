package pool

import (
	"context"
	"log/slog"
)

// UnlockTokens releases every pool and holder lock whose unlock time has
// passed. It is idempotent: a sweep with nothing due changes nothing. The
// sweep is exempt from the module pause so frozen liquidity always returns.
func (e *Engine) UnlockTokens(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	err := e.execute(ctx, "unlkpooltkns", Auth{}, false, func(act *action) error {
		var err error
		result, err = e.sweep(act)
		return err
	})
	if err != nil {
		return SweepResult{}, err
	}
	if result.PoolLocks > 0 || result.HolderLocks > 0 {
		e.observer.ObserveUnlock("pool", result.PoolAmount)
		e.observer.ObserveUnlock("holder", result.HolderAmount)
		e.logger.Info("pool locks released",
			slog.Int("poolLocks", result.PoolLocks),
			slog.Int("holderLocks", result.HolderLocks),
			slog.Uint64("poolAmount", result.PoolAmount),
			slog.Uint64("holderAmount", result.HolderAmount))
	}
	return result, nil
}

func (e *Engine) sweep(act *action) (SweepResult, error) {
	var result SweepResult
	poolLocks, err := e.state.DuePoolLocks(act.now)
	if err != nil {
		return result, err
	}
	for _, lock := range poolLocks {
		p, ok, err := e.state.PoolByID(lock.PoolID)
		if err != nil {
			return result, err
		}
		var restored uint64
		if ok {
			restored = lock.Amount
			if headroom := p.Total - p.Available; restored > headroom {
				restored = headroom
			}
			p.Available += restored
			if err := e.state.PutPool(p); err != nil {
				return result, err
			}
		}
		if err := e.state.DeletePoolLock(lock); err != nil {
			return result, err
		}
		result.PoolLocks++
		result.PoolAmount += restored
		act.emit(newLockReleasedEvent("pool", lock.Pool, "", restored))
	}

	holderLocks, err := e.state.DueHolderLocks(act.now)
	if err != nil {
		return result, err
	}
	for _, lock := range holderLocks {
		h, ok, err := e.state.HolderByID(lock.HolderID)
		if err != nil {
			return result, err
		}
		var restored uint64
		if ok {
			restored = lock.Amount
			if headroom := h.Contributed - h.Remaining; restored > headroom {
				restored = headroom
			}
			h.Remaining += restored
			if err := e.state.PutHolder(h); err != nil {
				return result, err
			}
		}
		if err := e.state.DeleteHolderLock(lock); err != nil {
			return result, err
		}
		result.HolderLocks++
		result.HolderAmount += restored
		act.emit(newLockReleasedEvent("holder", lock.Pool, lock.Holder, restored))
	}

	pending, err := e.state.PendingPoolLocks()
	if err != nil {
		return result, err
	}
	if len(pending) > 0 {
		result.HasPendingLock = true
		result.NextUnlockAt = pending[0].UnlockAt
	}
	return result, nil
}
