package state

import "poolhost/native/pool"

type holderRecord struct {
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

func (m *Manager) NextHolderID() (uint64, error) {
	return m.nextSequence("holder")
}

func (m *Manager) HolderByID(id uint64) (*pool.Holder, bool, error) {
	var rec holderRecord
	ok, err := m.KVGet(holderIDKey(id), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	h := pool.Holder(rec)
	return &h, true, nil
}

// HolderByPair resolves the single row a holder has in a pool.
func (m *Manager) HolderByPair(poolName, holder string) (*pool.Holder, bool, error) {
	var id uint64
	ok, err := m.KVGet(holderPairKey(poolName, holder), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.HolderByID(id)
}

// PutHolder writes the holder row and keeps the pair and recency indexes
// current.
func (m *Manager) PutHolder(h *pool.Holder) error {
	if h == nil {
		return nil
	}
	previous, ok, err := m.HolderByID(h.ID)
	if err != nil {
		return err
	}
	if ok {
		if err := m.KVDelete(holderRecentKey(previous.Pool, previous.LastUsedAt, previous.ID)); err != nil {
			return err
		}
	}
	if err := m.KVPut(holderIDKey(h.ID), holderRecord(*h)); err != nil {
		return err
	}
	if err := m.KVPut(holderPairKey(h.Pool, h.Holder), h.ID); err != nil {
		return err
	}
	return m.putIndex(holderRecentKey(h.Pool, h.LastUsedAt, h.ID))
}

// HoldersByRecency lists a pool's holders, least recently used first.
func (m *Manager) HoldersByRecency(poolName string) ([]*pool.Holder, error) {
	keys, err := m.scanKeys(holderRecentPrefixFor(poolName))
	if err != nil {
		return nil, err
	}
	holders := make([]*pool.Holder, 0, len(keys))
	for _, key := range keys {
		h, ok, err := m.HolderByID(trailingID(key))
		if err != nil {
			return nil, err
		}
		if ok {
			holders = append(holders, h)
		}
	}
	return holders, nil
}
