package pool

import "github.com/shopspring/decimal"

// MainPoolID is the reserved identifier of the backstop pool.
const MainPoolID uint64 = 0

// Pool is a liquidity pool backed by collateral staked from a dedicated
// account. Percentages (Reward, OwnerShare, HolderShare) are in [0, 100].
type Pool struct {
	ID               uint64
	Name             string
	Owner            string
	Collateral       string
	RewardAccount    string
	Reward           decimal.Decimal
	Private          bool
	OwnerShare       decimal.Decimal
	HolderShare      decimal.Decimal
	CollateralAmount uint64
	Total            uint64
	Available        uint64
	OwnerReward      uint64
	LockStart        uint64
	LockSeconds      uint64
	CreatedAt        uint64
	Active           bool
	Restricted       []string
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Restricted = append([]string(nil), p.Restricted...)
	return &clone
}

// Restricts reports whether account is on the pool's restriction list.
func (p *Pool) Restricts(account string) bool {
	if p == nil {
		return false
	}
	for _, entry := range p.Restricted {
		if entry == account {
			return true
		}
	}
	return false
}

// Holder is a liquidity provider's position in one pool.
type Holder struct {
	ID          uint64
	PoolID      uint64
	Pool        string
	Holder      string
	Contributed uint64
	Remaining   uint64
	Reward      uint64
	LastUsedAt  uint64
	CreatedAt   uint64
	Active      bool
}

func (h *Holder) Clone() *Holder {
	if h == nil {
		return nil
	}
	clone := *h
	return &clone
}

// Stake pins collateral held by a pool's collateral account.
type Stake struct {
	Collateral string
	Amount     uint64
	CreatedAt  uint64
}

// ServiceRequest tracks a requester's liquidity draw through settlement.
type ServiceRequest struct {
	TID             uint64
	Requester       string
	FeePaid         bool
	ServiceProvided bool
	Total           uint64
	Fee             uint64
	Reward          uint64
	CreatedAt       uint64
}

// PoolAllocation records a pool's contribution to a request.
type PoolAllocation struct {
	ID          uint64
	TID         uint64
	Requester   string
	PoolID      uint64
	Pool        string
	Amount      uint64
	RewardRate  decimal.Decimal
	Reward      uint64
	OwnerReward uint64
	CreatedAt   uint64
}

// HolderAllocation records a holder's slice of a pool contribution.
type HolderAllocation struct {
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

// PoolLock freezes part of a pool's availability until UnlockAt.
type PoolLock struct {
	ID        uint64
	PoolID    uint64
	Pool      string
	Amount    uint64
	UnlockAt  uint64
	CreatedAt uint64
}

// HolderLock freezes part of a holder's remaining balance until UnlockAt.
type HolderLock struct {
	ID        uint64
	PoolID    uint64
	Pool      string
	HolderID  uint64
	Holder    string
	Amount    uint64
	UnlockAt  uint64
	CreatedAt uint64
}

// Table names a resettable store.
type Table string

const (
	TableRequests          Table = "requests"
	TablePoolAllocations   Table = "pool-allocations"
	TableHolderAllocations Table = "holder-allocations"
	TableStakes            Table = "stakes"
	TableLocks             Table = "locks"
	TablePools             Table = "pools"
)

// Valid reports whether the table is one of the known tables.
func (t Table) Valid() bool {
	switch t {
	case TableRequests, TablePoolAllocations, TableHolderAllocations, TableStakes, TableLocks, TablePools:
		return true
	default:
		return false
	}
}

// SweepResult summarises an unlock sweep. The amounts count what was
// actually restored, which is less than the lock when a reset already made
// the row whole.
type SweepResult struct {
	PoolLocks      int
	HolderLocks    int
	PoolAmount     uint64
	HolderAmount   uint64
	NextUnlockAt   uint64
	HasPendingLock bool
}
