package pool

import (
	"context"
	"fmt"

	errs "poolhost/core/errors"
	"poolhost/core/types"
)

// CollectFee charges the requester fee plus reward into escrow and forwards
// the sourced total to the operator.
func (e *Engine) CollectFee(ctx context.Context, auth Auth, tid uint64, from string) error {
	return e.execute(ctx, "sndfee2escrw", auth, true, func(act *action) error {
		return e.collectFee(act, tid, from)
	})
}

// ProvideService returns the sourced liquidity to the pools and credits the
// rewards recorded for the request.
func (e *Engine) ProvideService(ctx context.Context, auth Auth, tid uint64) error {
	return e.execute(ctx, "servprvd2htl", auth, true, func(act *action) error {
		return e.provideService(act, tid)
	})
}

func (e *Engine) loadRequest(tid uint64) (*ServiceRequest, error) {
	request, ok, err := e.state.RequestByTID(tid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %d", errs.ErrNotFound, tid)
	}
	return request, nil
}

func (e *Engine) collectFee(act *action, tid uint64, from string) error {
	request, err := e.loadRequest(tid)
	if err != nil {
		return err
	}
	if request.FeePaid {
		return fmt.Errorf("%w: fee for request %d already collected", errs.ErrDuplicateEntity, tid)
	}
	charge, err := types.AddAmounts(request.Fee, request.Reward)
	if err != nil {
		return err
	}
	if err := e.requireBalance(from, charge, "requester"); err != nil {
		return err
	}
	if err := e.moveAuthorized(act, from, e.params.Escrow, charge, fmt.Sprintf("fee and reward for request %d", tid)); err != nil {
		return err
	}
	request.FeePaid = true
	if err := e.state.PutRequest(request); err != nil {
		return err
	}
	if err := e.requireBalance(e.params.Escrow, request.Total, "escrow"); err != nil {
		return err
	}
	if err := e.moveInternal(e.params.Escrow, e.params.Operator, request.Total, "sourced liquidity"); err != nil {
		return err
	}
	act.emit(newRequestEvent(EventTypeFeeCollected, request))
	return nil
}

func (e *Engine) provideService(act *action, tid uint64) error {
	request, err := e.loadRequest(tid)
	if err != nil {
		return err
	}
	if !request.FeePaid {
		return fmt.Errorf("%w: fee for request %d not collected", errs.ErrNotFound, tid)
	}
	if request.ServiceProvided {
		return fmt.Errorf("%w: request %d already provided", errs.ErrDuplicateEntity, tid)
	}
	if err := e.requireBalance(e.params.Operator, request.Total, "operator"); err != nil {
		return err
	}
	if err := e.moveInternal(e.params.Operator, e.params.Escrow, request.Total, "liquidity return"); err != nil {
		return err
	}
	request.ServiceProvided = true
	if err := e.state.PutRequest(request); err != nil {
		return err
	}
	if err := e.requireBalance(e.params.Escrow, request.Fee, "escrow"); err != nil {
		return err
	}
	if err := e.moveInternal(e.params.Escrow, e.params.Operator, request.Fee, "service fee"); err != nil {
		return err
	}

	allocations, err := e.state.PoolAllocations(tid)
	if err != nil {
		return err
	}
	for _, alloc := range allocations {
		p, ok, err := e.state.PoolByID(alloc.PoolID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: pool %d of request %d", errs.ErrNotFound, alloc.PoolID, tid)
		}
		owed, err := types.AddAmounts(alloc.Reward, alloc.Amount)
		if err != nil {
			return err
		}
		if err := e.requireBalance(e.params.Escrow, owed, "escrow"); err != nil {
			return err
		}
		if err := e.moveInternal(e.params.Escrow, p.RewardAccount, alloc.Reward, "pool reward"); err != nil {
			return err
		}
		if err := e.moveInternal(e.params.Escrow, p.Name, alloc.Amount, "pool principal"); err != nil {
			return err
		}
		if p.OwnerReward, err = types.AddAmounts(p.OwnerReward, alloc.OwnerReward); err != nil {
			return err
		}
		if err := e.state.PutPool(p); err != nil {
			return err
		}
		if err := e.state.DeletePoolAllocation(alloc); err != nil {
			return err
		}
	}

	holderAllocations, err := e.state.HolderAllocations(tid)
	if err != nil {
		return err
	}
	for _, alloc := range holderAllocations {
		h, ok, err := e.state.HolderByID(alloc.HolderID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: holder %s of request %d", errs.ErrNotFound, alloc.Holder, tid)
		}
		if h.Reward, err = types.AddAmounts(h.Reward, alloc.Reward); err != nil {
			return err
		}
		if err := e.state.PutHolder(h); err != nil {
			return err
		}
		if err := e.state.DeleteHolderAllocation(alloc); err != nil {
			return err
		}
	}
	act.emit(newRequestEvent(EventTypeServiceProvided, request))
	return nil
}
