package pool

import (
	"context"
	"fmt"
	"strconv"

	errs "poolhost/core/errors"
	"poolhost/core/types"
)

// ResetTable wipes one table. Clearing outstanding allocations first unwinds
// the balances they reserved: pool owner rewards are zeroed and holders get
// their remaining balance back with no pending reward.
func (e *Engine) ResetTable(ctx context.Context, auth Auth, table Table) error {
	return e.execute(ctx, "dlttbl", auth, true, func(act *action) error {
		if err := e.requireSigner(act, e.params.Operator); err != nil {
			return err
		}
		if !table.Valid() {
			return fmt.Errorf("%w: table %q", errs.ErrNotFound, table)
		}
		switch table {
		case TablePoolAllocations:
			if err := e.unwindPoolAllocations(); err != nil {
				return err
			}
		case TableHolderAllocations:
			if err := e.unwindHolderAllocations(); err != nil {
				return err
			}
		}
		if err := e.state.ClearTable(table); err != nil {
			return err
		}
		act.emit(newTableResetEvent(table))
		return nil
	})
}

func (e *Engine) unwindPoolAllocations() error {
	allocations, err := e.state.AllPoolAllocations()
	if err != nil {
		return err
	}
	seen := make(map[uint64]struct{})
	for _, alloc := range allocations {
		if _, done := seen[alloc.PoolID]; done {
			continue
		}
		seen[alloc.PoolID] = struct{}{}
		p, ok, err := e.state.PoolByID(alloc.PoolID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p.OwnerReward = 0
		if err := e.state.PutPool(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) unwindHolderAllocations() error {
	allocations, err := e.state.AllHolderAllocations()
	if err != nil {
		return err
	}
	seen := make(map[uint64]struct{})
	for _, alloc := range allocations {
		if _, done := seen[alloc.HolderID]; done {
			continue
		}
		seen[alloc.HolderID] = struct{}{}
		h, ok, err := e.state.HolderByID(alloc.HolderID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		h.Remaining = h.Contributed
		h.Reward = 0
		if err := e.state.PutHolder(h); err != nil {
			return err
		}
	}
	return nil
}

// DeletePool removes a single pool row by identifier.
func (e *Engine) DeletePool(ctx context.Context, auth Auth, id uint64) error {
	return e.execute(ctx, "dltpool", auth, true, func(act *action) error {
		if err := e.requireSigner(act, e.params.Operator); err != nil {
			return err
		}
		p, ok, err := e.state.PoolByID(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: pool %d", errs.ErrNotFound, id)
		}
		if err := e.state.DeletePool(id); err != nil {
			return err
		}
		act.emit(&types.Event{Type: EventTypePoolDeleted, Attributes: map[string]string{
			"poolId": strconv.FormatUint(id, 10),
			"pool":   p.Name,
		}})
		return nil
	})
}
