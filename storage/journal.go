package storage

import (
	"bytes"
	"sort"
	"strings"
)

// Batch collects writes that a Database applies in one step.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

// Len reports the number of queued operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

type journalEntry struct {
	value   []byte
	deleted bool
}

// Journal buffers writes on top of a base database. Reads observe the buffered
// writes; nothing reaches the base until Commit. Discard drops the buffer.
// A Journal is not safe for concurrent use.
type Journal struct {
	base    Database
	pending map[string]journalEntry
}

// NewJournal wraps base with an empty write buffer.
func NewJournal(base Database) *Journal {
	return &Journal{base: base, pending: make(map[string]journalEntry)}
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	if entry, ok := j.pending[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return j.base.Get(key)
}

func (j *Journal) Has(key []byte) (bool, error) {
	if entry, ok := j.pending[string(key)]; ok {
		return !entry.deleted, nil
	}
	return j.base.Has(key)
}

func (j *Journal) Put(key []byte, value []byte) error {
	j.pending[string(key)] = journalEntry{value: append([]byte(nil), value...)}
	return nil
}

func (j *Journal) Delete(key []byte) error {
	j.pending[string(key)] = journalEntry{deleted: true}
	return nil
}

// Iterate merges the base range with buffered writes in key order.
func (j *Journal) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	if err := j.base.Iterate(prefix, func(key, value []byte) error {
		merged[string(key)] = value
		return nil
	}); err != nil {
		return err
	}
	p := string(prefix)
	for k, entry := range j.pending {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if entry.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = append([]byte(nil), entry.value...)
	}
	pairs := make([]kvPair, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, kvPair{key: []byte(k), value: v})
	}
	sort.Slice(pairs, func(i, k int) bool { return bytes.Compare(pairs[i].key, pairs[k].key) < 0 })
	return visit(pairs, fn)
}

// Dirty reports the number of buffered keys.
func (j *Journal) Dirty() int { return len(j.pending) }

// Commit flushes the buffer to the base database as one batch. The buffer is
// cleared only when the write succeeds.
func (j *Journal) Commit() error {
	if len(j.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(j.pending))
	for k := range j.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		entry := j.pending[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := j.base.Write(batch); err != nil {
		return err
	}
	j.pending = make(map[string]journalEntry)
	return nil
}

// Discard drops every buffered write.
func (j *Journal) Discard() {
	j.pending = make(map[string]journalEntry)
}
