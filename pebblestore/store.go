// Package pebblestore provides a tupledb.Backend on top of Pebble.
//
// Read-only transactions are Pebble snapshots. Writable transactions are
// indexed batches, so reads inside them see their own writes, and they are
// committed with pebble.Sync.
package pebblestore

import (
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/andreyvit/tupledb"
)

type Options struct {
	// InMemory keeps everything in a memory filesystem; path is ignored.
	InMemory bool

	CacheSize    int64
	MemTableSize uint64
}

type Store struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

var _ tupledb.Backend = (*Store)(nil)

func Open(path string, opt Options) (*Store, error) {
	if opt.CacheSize == 0 {
		opt.CacheSize = 64 * 1024 * 1024 // 64MB
	}
	if opt.MemTableSize == 0 {
		opt.MemTableSize = 32 * 1024 * 1024 // 32MB
	}
	cache := pebble.NewCache(opt.CacheSize)
	defer cache.Unref()

	popts := &pebble.Options{
		Cache:        cache,
		MemTableSize: opt.MemTableSize,
	}
	if opt.InMemory {
		popts.FS = vfs.NewMem()
		path = ""
	}

	db, err := pebble.Open(path, popts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB returns the underlying Pebble database.
func (p *Store) DB() *pebble.DB {
	return p.db
}

func (p *Store) Begin(writable bool) (tupledb.BackendTx, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}
	if writable {
		return &tx{store: p, batch: p.db.NewIndexedBatch()}, nil
	}
	return &tx{store: p, snap: p.db.NewSnapshot()}, nil
}

func (p *Store) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
