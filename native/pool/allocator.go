package pool

import (
	"context"
	"fmt"
	"time"

	errs "poolhost/core/errors"
	"poolhost/core/types"
)

// RequestService sources tokens for a request from the cheapest eligible
// pools, backstops any shortfall from the main pool and settles the request.
func (e *Engine) RequestService(ctx context.Context, auth Auth, tid uint64, requester string, tokens types.Asset) (*ServiceRequest, error) {
	var settled *ServiceRequest
	err := e.execute(ctx, "reqservice", auth, true, func(act *action) error {
		if _, exists, err := e.state.RequestByTID(tid); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: request %d already exists", errs.ErrDuplicateEntity, tid)
		}
		if err := e.requireAccount(requester); err != nil {
			return err
		}
		if err := e.validateTokens(tokens); err != nil {
			return err
		}

		request := &ServiceRequest{
			TID:       tid,
			Requester: requester,
			Total:     tokens.Amount,
			Fee:       percentOf(tokens.Amount, e.params.FeeRate),
			CreatedAt: act.now,
		}
		remaining := tokens.Amount
		pools, err := e.state.PoolsByReward()
		if err != nil {
			return err
		}
		for _, p := range pools {
			if remaining == 0 {
				break
			}
			eligible, err := e.eligible(p, requester)
			if err != nil {
				return err
			}
			if !eligible {
				continue
			}
			used := minUint64(remaining, p.Available)
			reward, err := e.drawFromPool(act, request, p, used)
			if err != nil {
				return err
			}
			if request.Reward, err = types.AddAmounts(request.Reward, reward); err != nil {
				return err
			}
			remaining -= used
		}
		if remaining > 0 {
			reward, err := e.drawFromMainPool(act, request, remaining)
			if err != nil {
				return err
			}
			if request.Reward, err = types.AddAmounts(request.Reward, reward); err != nil {
				return err
			}
		}
		if err := e.state.PutRequest(request); err != nil {
			return err
		}
		act.emit(newRequestEvent(EventTypeServiceRequested, request))

		if err := e.collectFee(act, tid, requester); err != nil {
			return err
		}
		if err := e.provideService(act, tid); err != nil {
			return err
		}
		final, _, err := e.state.RequestByTID(tid)
		if err != nil {
			return err
		}
		settled = final
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// eligible applies the allocator's skip rules to p. Skips are reported to the
// observer by reason.
func (e *Engine) eligible(p *Pool, requester string) (bool, error) {
	reason := ""
	switch {
	case p.ID == MainPoolID:
		reason = "main_pool"
	case !p.Active:
		reason = "inactive"
	case p.Available == 0:
		reason = "exhausted"
	case p.Restricts(requester):
		reason = errs.Kind(errs.ErrRestricted)
	}
	if reason == "" {
		collateral, err := e.balanceOf(p.Collateral)
		if err != nil {
			return false, err
		}
		free, err := e.balanceOf(p.Name)
		if err != nil {
			return false, err
		}
		switch {
		case collateral < p.CollateralAmount:
			reason = "collateral"
		case free == 0:
			reason = "unfunded"
		}
	}
	if reason != "" {
		e.observer.ObservePoolSkip(reason)
		return false, nil
	}
	return true, nil
}

// drawFromPool moves used tokens from p into escrow, records the allocation,
// spreads it across holders and freezes it until the pool's lock expires.
func (e *Engine) drawFromPool(act *action, request *ServiceRequest, p *Pool, used uint64) (uint64, error) {
	if err := e.requireBalance(p.Name, used, "pool"); err != nil {
		return 0, err
	}
	if err := e.moveInternal(p.Name, e.params.Escrow, used, "liquidity to escrow"); err != nil {
		return 0, err
	}
	reward := percentOf(used, p.Reward)
	alloc := &PoolAllocation{
		TID:         request.TID,
		Requester:   request.Requester,
		PoolID:      p.ID,
		Pool:        p.Name,
		Amount:      used,
		RewardRate:  p.Reward,
		Reward:      reward,
		OwnerReward: percentOf(reward, p.OwnerShare),
		CreatedAt:   act.now,
	}
	if err := e.state.AddPoolAllocation(alloc); err != nil {
		return 0, err
	}
	unlockAt := act.now + p.LockSeconds
	if err := e.allocateHolders(act, request, p, used, unlockAt); err != nil {
		return 0, err
	}
	p.Available -= used
	p.LockStart = act.now
	if err := e.state.PutPool(p); err != nil {
		return 0, err
	}
	if err := e.state.AddPoolLock(&PoolLock{
		PoolID:    p.ID,
		Pool:      p.Name,
		Amount:    used,
		UnlockAt:  unlockAt,
		CreatedAt: act.now,
	}); err != nil {
		return 0, err
	}
	act.timers = append(act.timers, scheduledUnlock{
		id:    unlockCallbackID(request.TID, p.ID),
		delay: time.Duration(p.LockSeconds) * time.Second,
	})
	act.emit(newAllocationEvent(alloc, unlockAt))
	return reward, nil
}

// drawFromMainPool covers the shortfall from the main pool. No eligibility
// rules apply and main pool capital is never locked.
func (e *Engine) drawFromMainPool(act *action, request *ServiceRequest, amount uint64) (uint64, error) {
	main, ok, err := e.state.PoolByID(MainPoolID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: main pool not initialized", errs.ErrNotFound)
	}
	if err := e.moveInternal(main.Name, e.params.Escrow, amount, "main pool liquidity to escrow"); err != nil {
		return 0, err
	}
	reward := percentOf(amount, main.Reward)
	alloc := &PoolAllocation{
		TID:         request.TID,
		Requester:   request.Requester,
		PoolID:      main.ID,
		Pool:        main.Name,
		Amount:      amount,
		RewardRate:  main.Reward,
		Reward:      reward,
		OwnerReward: percentOf(reward, main.OwnerShare),
		CreatedAt:   act.now,
	}
	if err := e.state.AddPoolAllocation(alloc); err != nil {
		return 0, err
	}
	act.emit(newAllocationEvent(alloc, act.now))
	return reward, nil
}

// allocateHolders spreads amount over the pool's holders, least recently used
// first, and freezes each slice until unlockAt.
func (e *Engine) allocateHolders(act *action, request *ServiceRequest, p *Pool, amount, unlockAt uint64) error {
	holders, err := e.state.HoldersByRecency(p.Name)
	if err != nil {
		return err
	}
	unassigned := amount
	for _, h := range holders {
		if unassigned == 0 {
			break
		}
		if !h.Active || h.Remaining == 0 {
			continue
		}
		take := minUint64(unassigned, h.Remaining)
		if err := e.state.AddHolderAllocation(&HolderAllocation{
			TID:       request.TID,
			Requester: request.Requester,
			Pool:      p.Name,
			HolderID:  h.ID,
			Holder:    h.Holder,
			Amount:    take,
			Reward:    shareOf(take, p.Reward, p.HolderShare),
			CreatedAt: act.now,
		}); err != nil {
			return err
		}
		if err := e.state.AddHolderLock(&HolderLock{
			PoolID:    p.ID,
			Pool:      p.Name,
			HolderID:  h.ID,
			Holder:    h.Holder,
			Amount:    take,
			UnlockAt:  unlockAt,
			CreatedAt: act.now,
		}); err != nil {
			return err
		}
		h.Remaining -= take
		if h.Remaining == 0 {
			h.LastUsedAt = act.now
		}
		if err := e.state.PutHolder(h); err != nil {
			return err
		}
		unassigned -= take
	}
	if unassigned > 0 {
		return fmt.Errorf("%w: holders of %s cover %d of %d", errs.ErrInsufficientBalance,
			p.Name, amount-unassigned, amount)
	}
	return nil
}
