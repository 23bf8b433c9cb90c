package state

import (
	"fmt"

	"poolhost/native/pool"
	"poolhost/storage"

	"github.com/ethereum/go-ethereum/rlp"
)

type poolLockRecord struct {
	ID        uint64
	PoolID    uint64
	Pool      string
	Amount    uint64
	UnlockAt  uint64
	CreatedAt uint64
}

type holderLockRecord struct {
	ID        uint64
	PoolID    uint64
	Pool      string
	HolderID  uint64
	Holder    string
	Amount    uint64
	UnlockAt  uint64
	CreatedAt uint64
}

func (m *Manager) AddPoolLock(l *pool.PoolLock) error {
	id, err := m.nextSequence("lock")
	if err != nil {
		return err
	}
	l.ID = id
	return m.KVPut(poolLockKey(l.UnlockAt, l.ID), poolLockRecord(*l))
}

func (m *Manager) AddHolderLock(l *pool.HolderLock) error {
	id, err := m.nextSequence("lock")
	if err != nil {
		return err
	}
	l.ID = id
	return m.KVPut(holderLockKey(l.UnlockAt, l.ID), holderLockRecord(*l))
}

// DuePoolLocks lists pool locks with UnlockAt <= now, earliest first.
func (m *Manager) DuePoolLocks(now uint64) ([]*pool.PoolLock, error) {
	var out []*pool.PoolLock
	err := m.scanValues(poolLockPrefix, func(_, value []byte) error {
		var rec poolLockRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return err
		}
		if rec.UnlockAt > now {
			return storage.ErrStop
		}
		l := pool.PoolLock(rec)
		out = append(out, &l)
		return nil
	})
	return out, err
}

// DueHolderLocks lists holder locks with UnlockAt <= now, earliest first.
func (m *Manager) DueHolderLocks(now uint64) ([]*pool.HolderLock, error) {
	var out []*pool.HolderLock
	err := m.scanValues(holderLockPrefix, func(_, value []byte) error {
		var rec holderLockRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return err
		}
		if rec.UnlockAt > now {
			return storage.ErrStop
		}
		l := pool.HolderLock(rec)
		out = append(out, &l)
		return nil
	})
	return out, err
}

// PendingPoolLocks lists every outstanding pool lock, earliest first.
func (m *Manager) PendingPoolLocks() ([]*pool.PoolLock, error) {
	var out []*pool.PoolLock
	err := m.scanValues(poolLockPrefix, func(_, value []byte) error {
		var rec poolLockRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return err
		}
		l := pool.PoolLock(rec)
		out = append(out, &l)
		return nil
	})
	return out, err
}

func (m *Manager) DeletePoolLock(l *pool.PoolLock) error {
	return m.KVDelete(poolLockKey(l.UnlockAt, l.ID))
}

func (m *Manager) DeleteHolderLock(l *pool.HolderLock) error {
	return m.KVDelete(holderLockKey(l.UnlockAt, l.ID))
}

// ClearTable wipes every row of the named table together with its indexes.
func (m *Manager) ClearTable(table pool.Table) error {
	var prefixes [][]byte
	switch table {
	case pool.TableRequests:
		prefixes = [][]byte{requestPrefix}
	case pool.TablePoolAllocations:
		prefixes = [][]byte{poolAllocPrefix}
	case pool.TableHolderAllocations:
		prefixes = [][]byte{holderAllocPrefix}
	case pool.TableStakes:
		prefixes = [][]byte{stakePrefix}
	case pool.TableLocks:
		prefixes = [][]byte{poolLockPrefix, holderLockPrefix}
	case pool.TablePools:
		prefixes = [][]byte{
			poolIDPrefix, poolNamePrefix, poolOwnerPrefix, poolRewardPrefix,
			holderIDPrefix, holderPairPrefix, holderRecentPrefix,
		}
	default:
		return fmt.Errorf("state: unknown table %q", table)
	}
	for _, prefix := range prefixes {
		if err := m.clearPrefix(prefix); err != nil {
			return err
		}
	}
	return nil
}
