package state

import (
	"poolhost/native/pool"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"
)

type stakeRecord struct {
	Collateral string
	Amount     uint64
	CreatedAt  uint64
}

type requestRecord struct {
	TID             uint64
	Requester       string
	FeePaid         bool
	ServiceProvided bool
	Total           uint64
	Fee             uint64
	Reward          uint64
	CreatedAt       uint64
}

type poolAllocationRecord struct {
	ID          uint64
	TID         uint64
	Requester   string
	PoolID      uint64
	Pool        string
	Amount      uint64
	RewardRate  string
	Reward      uint64
	OwnerReward uint64
	CreatedAt   uint64
}

type holderAllocationRecord struct {
	ID        uint64
	TID       uint64
	Requester string
	Pool      string
	HolderID  uint64
	Holder    string
	Amount    uint64
	Reward    uint64
	CreatedAt uint64
}

// StakeOf returns the stake keyed by a collateral account.
func (m *Manager) StakeOf(collateral string) (*pool.Stake, bool, error) {
	var rec stakeRecord
	ok, err := m.KVGet(stakeKey(collateral), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	s := pool.Stake(rec)
	return &s, true, nil
}

func (m *Manager) PutStake(s *pool.Stake) error {
	return m.KVPut(stakeKey(s.Collateral), stakeRecord(*s))
}

func (m *Manager) DeleteStake(collateral string) error {
	return m.KVDelete(stakeKey(collateral))
}

// StakedAmount satisfies bank.StakeView.
func (m *Manager) StakedAmount(account string) (uint64, bool, error) {
	s, ok, err := m.StakeOf(account)
	if err != nil || !ok {
		return 0, false, err
	}
	return s.Amount, true, nil
}

// Stakes lists every stake ordered by collateral account.
func (m *Manager) Stakes() ([]*pool.Stake, error) {
	var out []*pool.Stake
	err := m.scanValues(stakePrefix, func(_, value []byte) error {
		var rec stakeRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return err
		}
		s := pool.Stake(rec)
		out = append(out, &s)
		return nil
	})
	return out, err
}

func (m *Manager) RequestByTID(tid uint64) (*pool.ServiceRequest, bool, error) {
	var rec requestRecord
	ok, err := m.KVGet(requestKey(tid), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	r := pool.ServiceRequest(rec)
	return &r, true, nil
}

func (m *Manager) PutRequest(r *pool.ServiceRequest) error {
	return m.KVPut(requestKey(r.TID), requestRecord(*r))
}

// AddPoolAllocation assigns an identifier and stores the record.
func (m *Manager) AddPoolAllocation(a *pool.PoolAllocation) error {
	id, err := m.nextSequence("alloc")
	if err != nil {
		return err
	}
	a.ID = id
	return m.KVPut(poolAllocKey(a.TID, a.ID), poolAllocationRecord{
		ID:          a.ID,
		TID:         a.TID,
		Requester:   a.Requester,
		PoolID:      a.PoolID,
		Pool:        a.Pool,
		Amount:      a.Amount,
		RewardRate:  a.RewardRate.String(),
		Reward:      a.Reward,
		OwnerReward: a.OwnerReward,
		CreatedAt:   a.CreatedAt,
	})
}

// PoolAllocations lists the pool allocations of one request.
func (m *Manager) PoolAllocations(tid uint64) ([]*pool.PoolAllocation, error) {
	return m.poolAllocations(poolAllocPrefixFor(tid))
}

// AllPoolAllocations lists every outstanding pool allocation.
func (m *Manager) AllPoolAllocations() ([]*pool.PoolAllocation, error) {
	return m.poolAllocations(poolAllocPrefix)
}

func (m *Manager) poolAllocations(prefix []byte) ([]*pool.PoolAllocation, error) {
	var out []*pool.PoolAllocation
	err := m.scanValues(prefix, func(_, value []byte) error {
		var rec poolAllocationRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return err
		}
		rate, err := decimal.NewFromString(rec.RewardRate)
		if err != nil {
			return err
		}
		out = append(out, &pool.PoolAllocation{
			ID:          rec.ID,
			TID:         rec.TID,
			Requester:   rec.Requester,
			PoolID:      rec.PoolID,
			Pool:        rec.Pool,
			Amount:      rec.Amount,
			RewardRate:  rate,
			Reward:      rec.Reward,
			OwnerReward: rec.OwnerReward,
			CreatedAt:   rec.CreatedAt,
		})
		return nil
	})
	return out, err
}

func (m *Manager) DeletePoolAllocation(a *pool.PoolAllocation) error {
	return m.KVDelete(poolAllocKey(a.TID, a.ID))
}

func (m *Manager) AddHolderAllocation(a *pool.HolderAllocation) error {
	id, err := m.nextSequence("alloc")
	if err != nil {
		return err
	}
	a.ID = id
	return m.KVPut(holderAllocKey(a.TID, a.ID), holderAllocationRecord(*a))
}

func (m *Manager) HolderAllocations(tid uint64) ([]*pool.HolderAllocation, error) {
	return m.holderAllocations(holderAllocPrefixFor(tid))
}

func (m *Manager) AllHolderAllocations() ([]*pool.HolderAllocation, error) {
	return m.holderAllocations(holderAllocPrefix)
}

func (m *Manager) holderAllocations(prefix []byte) ([]*pool.HolderAllocation, error) {
	var out []*pool.HolderAllocation
	err := m.scanValues(prefix, func(_, value []byte) error {
		var rec holderAllocationRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return err
		}
		a := pool.HolderAllocation(rec)
		out = append(out, &a)
		return nil
	})
	return out, err
}

func (m *Manager) DeleteHolderAllocation(a *pool.HolderAllocation) error {
	return m.KVDelete(holderAllocKey(a.TID, a.ID))
}
