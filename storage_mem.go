package tupledb

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
)

type memBackend struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []memKV // sorted by key; replaced, never modified, on commit
	closed bool
	writer bool
}

// NewMemBackend returns a transient in-memory Backend. Readers share the
// committed slice; a writer works on a copy and swaps it in on commit.
func NewMemBackend() Backend {
	s := &memBackend{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memBackend) Begin(writable bool) (BackendTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("mem backend: %w", ErrClosed)
	}
	if !writable {
		return &memTx{base: s, items: s.items}, nil
	}
	for s.writer && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, fmt.Errorf("mem backend: %w", ErrClosed)
	}
	s.writer = true
	return &memTx{
		base:     s,
		writable: true,
		items:    slices.Clone(s.items),
	}, nil
}

func (s *memBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	s.cond.Broadcast()
	return nil
}

type memKV struct {
	key   []byte
	value []byte
}

type memTx struct {
	base     *memBackend
	writable bool
	items    []memKV
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) find(key []byte) (int, bool) {
	items := tx.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	return i, i < len(items) && bytes.Equal(items[i].key, key)
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, fmt.Errorf("mem backend: tx is closed")
	}
	i, ok := tx.find(key)
	if !ok {
		return nil, nil
	}
	return tx.items[i].value, nil
}

func (tx *memTx) Put(key, value []byte) error {
	if tx.closed || !tx.writable {
		return fmt.Errorf("mem backend: tx not writable")
	}
	kv := memKV{key: slices.Clone(key), value: slices.Clone(value)}
	if kv.value == nil {
		kv.value = []byte{}
	}
	i, ok := tx.find(key)
	if ok {
		tx.items[i] = kv
		return nil
	}
	tx.items = slices.Insert(tx.items, i, kv)
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if tx.closed || !tx.writable {
		return fmt.Errorf("mem backend: tx not writable")
	}
	i, ok := tx.find(key)
	if !ok {
		return nil
	}
	tx.items = slices.Delete(tx.items, i, i+1)
	return nil
}

func (tx *memTx) Range(lower, upper []byte, reverse bool) BackendIterator {
	start, _ := tx.find(lower)
	end := len(tx.items)
	if upper != nil {
		end, _ = tx.find(upper)
	}
	if end < start {
		end = start
	}
	// Writers mutate tx.items in place, so iterate over a stable view.
	items := tx.items[start:end:end]
	if tx.writable {
		items = slices.Clone(items)
	}
	it := &memIterator{items: items, reverse: reverse, pos: -1}
	if reverse {
		it.pos = len(items)
	}
	return it
}

func (tx *memTx) Commit() error {
	if !tx.writable {
		return fmt.Errorf("mem backend: tx not writable")
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.closed {
		return fmt.Errorf("mem backend: tx is closed")
	}
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("mem backend: %w", ErrClosed)
	}
	tx.base.items = tx.items
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

type memIterator struct {
	items   []memKV
	reverse bool
	pos     int
}

func (it *memIterator) Next() bool {
	if it.reverse {
		it.pos--
		return it.pos >= 0
	}
	it.pos++
	return it.pos < len(it.items)
}

func (it *memIterator) Key() []byte   { return it.items[it.pos].key }
func (it *memIterator) Value() []byte { return it.items[it.pos].value }
func (it *memIterator) Err() error    { return nil }
func (it *memIterator) Close() error  { return nil }
