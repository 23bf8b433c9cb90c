package state

import (
	"poolhost/native/pool"

	"github.com/shopspring/decimal"
)

type poolRecord struct {
	ID               uint64
	Name             string
	Owner            string
	Collateral       string
	RewardAccount    string
	Reward           string
	Private          bool
	OwnerShare       string
	HolderShare      string
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

func newPoolRecord(p *pool.Pool) poolRecord {
	return poolRecord{
		ID:               p.ID,
		Name:             p.Name,
		Owner:            p.Owner,
		Collateral:       p.Collateral,
		RewardAccount:    p.RewardAccount,
		Reward:           p.Reward.String(),
		Private:          p.Private,
		OwnerShare:       p.OwnerShare.String(),
		HolderShare:      p.HolderShare.String(),
		CollateralAmount: p.CollateralAmount,
		Total:            p.Total,
		Available:        p.Available,
		OwnerReward:      p.OwnerReward,
		LockStart:        p.LockStart,
		LockSeconds:      p.LockSeconds,
		CreatedAt:        p.CreatedAt,
		Active:           p.Active,
		Restricted:       append([]string{}, p.Restricted...),
	}
}

func (r poolRecord) pool() (*pool.Pool, error) {
	reward, err := decimal.NewFromString(r.Reward)
	if err != nil {
		return nil, err
	}
	ownerShare, err := decimal.NewFromString(r.OwnerShare)
	if err != nil {
		return nil, err
	}
	holderShare, err := decimal.NewFromString(r.HolderShare)
	if err != nil {
		return nil, err
	}
	return &pool.Pool{
		ID:               r.ID,
		Name:             r.Name,
		Owner:            r.Owner,
		Collateral:       r.Collateral,
		RewardAccount:    r.RewardAccount,
		Reward:           reward,
		Private:          r.Private,
		OwnerShare:       ownerShare,
		HolderShare:      holderShare,
		CollateralAmount: r.CollateralAmount,
		Total:            r.Total,
		Available:        r.Available,
		OwnerReward:      r.OwnerReward,
		LockStart:        r.LockStart,
		LockSeconds:      r.LockSeconds,
		CreatedAt:        r.CreatedAt,
		Active:           r.Active,
		Restricted:       append([]string(nil), r.Restricted...),
	}, nil
}

// NextPoolID allocates an identifier for a new pool. Identifiers start at 1;
// 0 belongs to the main pool.
func (m *Manager) NextPoolID() (uint64, error) {
	return m.nextSequence("pool")
}

// PoolByID loads a pool by identifier.
func (m *Manager) PoolByID(id uint64) (*pool.Pool, bool, error) {
	var rec poolRecord
	ok, err := m.KVGet(poolIDKey(id), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	p, err := rec.pool()
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// PoolByName resolves a pool through the name index.
func (m *Manager) PoolByName(name string) (*pool.Pool, bool, error) {
	var id uint64
	ok, err := m.KVGet(poolNameKey(name), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.PoolByID(id)
}

// PutPool writes the pool and re-keys its secondary indexes.
func (m *Manager) PutPool(p *pool.Pool) error {
	if p == nil {
		return nil
	}
	previous, ok, err := m.PoolByID(p.ID)
	if err != nil {
		return err
	}
	if ok {
		if err := m.dropPoolIndexes(previous); err != nil {
			return err
		}
	}
	if err := m.KVPut(poolIDKey(p.ID), newPoolRecord(p)); err != nil {
		return err
	}
	if err := m.KVPut(poolNameKey(p.Name), p.ID); err != nil {
		return err
	}
	if err := m.putIndex(poolOwnerKey(p.Owner, p.ID)); err != nil {
		return err
	}
	return m.putIndex(poolRewardKey(p.Reward, p.ID))
}

func (m *Manager) dropPoolIndexes(p *pool.Pool) error {
	for _, key := range [][]byte{poolNameKey(p.Name), poolOwnerKey(p.Owner, p.ID), poolRewardKey(p.Reward, p.ID)} {
		if err := m.KVDelete(key); err != nil {
			return err
		}
	}
	return nil
}

// DeletePool removes the pool and its index entries.
func (m *Manager) DeletePool(id uint64) error {
	p, ok, err := m.PoolByID(id)
	if err != nil || !ok {
		return err
	}
	if err := m.dropPoolIndexes(p); err != nil {
		return err
	}
	return m.KVDelete(poolIDKey(id))
}

// PoolsByReward lists pools in ascending reward-rate order, ties broken by id.
func (m *Manager) PoolsByReward() ([]*pool.Pool, error) {
	return m.poolsFromIndex(poolRewardPrefix)
}

// PoolsByOwner lists the pools owned by owner in id order.
func (m *Manager) PoolsByOwner(owner string) ([]*pool.Pool, error) {
	return m.poolsFromIndex(poolOwnerPrefixFor(owner))
}

func (m *Manager) poolsFromIndex(prefix []byte) ([]*pool.Pool, error) {
	keys, err := m.scanKeys(prefix)
	if err != nil {
		return nil, err
	}
	pools := make([]*pool.Pool, 0, len(keys))
	for _, key := range keys {
		p, ok, err := m.PoolByID(trailingID(key))
		if err != nil {
			return nil, err
		}
		if ok {
			pools = append(pools, p)
		}
	}
	return pools, nil
}
