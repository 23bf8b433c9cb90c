package state

import (
	"errors"
	"fmt"

	"poolhost/core/types"
	"poolhost/native/bank"
	"poolhost/storage"

	"github.com/ethereum/go-ethereum/rlp"
)

// Manager owns every engine table and the token ledger on top of a single
// write-buffered journal. Mutations become durable only on Commit.
type Manager struct {
	journal *storage.Journal
	ledger  *bank.Ledger
}

// NewManager creates a state manager over db for the supplied token symbol.
func NewManager(db storage.Database, symbol types.Symbol) *Manager {
	journal := storage.NewJournal(db)
	m := &Manager{journal: journal}
	m.ledger = bank.NewLedger(journal, symbol)
	m.ledger.SetStakeView(m)
	return m
}

// Ledger exposes the token ledger sharing the manager's journal.
func (m *Manager) Ledger() *bank.Ledger { return m.ledger }

// Commit flushes buffered writes to the database in one batch.
func (m *Manager) Commit() error { return m.journal.Commit() }

// Discard drops buffered writes.
func (m *Manager) Discard() { m.journal.Discard() }

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.journal.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.journal.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.journal.Delete(key)
}

func (m *Manager) putIndex(key []byte) error {
	return m.journal.Put(key, []byte{})
}

// scanKeys returns every key under prefix in ascending order.
func (m *Manager) scanKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := m.journal.Iterate(prefix, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

func (m *Manager) scanValues(prefix []byte, fn func(key, value []byte) error) error {
	return m.journal.Iterate(prefix, fn)
}

func (m *Manager) clearPrefix(prefix []byte) error {
	keys, err := m.scanKeys(prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := m.journal.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) nextSequence(name string) (uint64, error) {
	var current uint64
	if _, err := m.KVGet(sequenceKey(name), &current); err != nil {
		return 0, err
	}
	current++
	if err := m.KVPut(sequenceKey(name), current); err != nil {
		return 0, err
	}
	return current, nil
}

// IsAccount reports whether the ledger knows the account.
func (m *Manager) IsAccount(name string) (bool, error) { return m.ledger.IsAccount(name) }

// Balance returns the ledger balance of owner.
func (m *Manager) Balance(owner string) (uint64, bool, error) { return m.ledger.Balance(owner) }

// Transfer performs an authorized ledger transfer.
func (m *Manager) Transfer(auth bank.Authorizer, from, to string, amount uint64, memo string) error {
	return m.ledger.Transfer(auth, from, to, amount, memo)
}

// TransferInternal performs an engine-initiated ledger transfer.
func (m *Manager) TransferInternal(from, to string, amount uint64, memo string) error {
	return m.ledger.TransferInternal(from, to, amount, memo)
}
