package tupledb

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucketName = []byte("tuples")

type BoltOptions struct {
	IsTesting bool
	MmapSize  int
	Timeout   time.Duration
}

type boltBackend struct {
	bdb *bbolt.DB
}

// OpenBolt opens (creating if needed) a Bolt database file as a Backend.
func OpenBolt(path string, opt BoltOptions) (Backend, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltBucketName)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &boltBackend{bdb: bdb}, nil
}

// NewBoltBackend wraps an already open Bolt database.
func NewBoltBackend(bdb *bbolt.DB) (Backend, error) {
	err := bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltBucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &boltBackend{bdb: bdb}, nil
}

func (s *boltBackend) Begin(writable bool) (BackendTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &boltTx{btx: btx, b: btx.Bucket(boltBucketName)}, nil
}

func (s *boltBackend) Close() error {
	return s.bdb.Close()
}

type boltTx struct {
	btx *bbolt.Tx
	b   *bbolt.Bucket
}

func (tx *boltTx) BoltTx() *bbolt.Tx { return tx.btx }

func (tx *boltTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltTx) Get(key []byte) ([]byte, error) {
	return tx.b.Get(key), nil
}

func (tx *boltTx) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return tx.b.Put(key, value)
}

func (tx *boltTx) Delete(key []byte) error {
	return tx.b.Delete(key)
}

func (tx *boltTx) Range(lower, upper []byte, reverse bool) BackendIterator {
	return &boltIterator{c: tx.b.Cursor(), lower: lower, upper: upper, reverse: reverse}
}

func (tx *boltTx) Commit() error { return tx.btx.Commit() }

func (tx *boltTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

type boltIterator struct {
	c       *bbolt.Cursor
	lower   []byte
	upper   []byte
	reverse bool
	init    bool
	done    bool
	k, v    []byte
}

func (it *boltIterator) Next() bool {
	if it.done {
		return false
	}
	var k, v []byte
	if !it.init {
		it.init = true
		if it.reverse {
			k, v = it.seekLast()
		} else if len(it.lower) == 0 {
			k, v = it.c.First()
		} else {
			k, v = it.c.Seek(it.lower)
		}
	} else if it.reverse {
		k, v = it.c.Prev()
	} else {
		k, v = it.c.Next()
	}
	if k == nil || !it.inRange(k) {
		it.done = true
		it.k, it.v = nil, nil
		return false
	}
	it.k, it.v = k, v
	return true
}

// seekLast positions the cursor on the last key below upper.
func (it *boltIterator) seekLast() ([]byte, []byte) {
	if it.upper == nil {
		return it.c.Last()
	}
	k, _ := it.c.Seek(it.upper)
	if k == nil {
		return it.c.Last()
	}
	return it.c.Prev()
}

func (it *boltIterator) inRange(k []byte) bool {
	if it.reverse {
		return bytes.Compare(k, it.lower) >= 0
	}
	return it.upper == nil || bytes.Compare(k, it.upper) < 0
}

func (it *boltIterator) Key() []byte   { return it.k }
func (it *boltIterator) Value() []byte { return it.v }
func (it *boltIterator) Err() error    { return nil }
func (it *boltIterator) Close() error  { return nil }
