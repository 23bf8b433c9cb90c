package pool

import (
	"fmt"

	errs "poolhost/core/errors"
)

// Queries read committed state. They take the engine lock so they never
// observe a half-applied action.

func (e *Engine) Pool(name string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadPool(name)
}

func (e *Engine) PoolByID(id uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok, err := e.state.PoolByID(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: pool %d", errs.ErrNotFound, id)
	}
	return p, nil
}

// Pools lists every pool in allocation order (ascending reward rate).
func (e *Engine) Pools() ([]*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PoolsByReward()
}

func (e *Engine) Holder(poolName, holder string) (*Holder, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok, err := e.state.HolderByPair(poolName, holder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s holds no position in %s", errs.ErrNotFound, holder, poolName)
	}
	return h, nil
}

// Holders lists a pool's holders, least recently drawn from first.
func (e *Engine) Holders(poolName string) ([]*Holder, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.HoldersByRecency(poolName)
}

func (e *Engine) Request(tid uint64) (*ServiceRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadRequest(tid)
}

func (e *Engine) Stake(collateral string) (*Stake, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok, err := e.state.StakeOf(collateral)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: stake of %s", errs.ErrNotFound, collateral)
	}
	return s, nil
}

// PendingLocks lists outstanding pool locks, earliest first.
func (e *Engine) PendingLocks() ([]*PoolLock, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PendingPoolLocks()
}

// Balance returns the ledger balance of account, zero when it has none.
func (e *Engine) Balance(account string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceOf(account)
}
