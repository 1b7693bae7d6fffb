package pebblestore

import (
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"

	"github.com/andreyvit/tupledb"
)

type tx struct {
	store *Store
	snap  *pebble.Snapshot
	batch *pebble.Batch
	done  bool
}

func (t *tx) reader() pebble.Reader {
	if t.batch != nil {
		return t.batch
	}
	return t.snap
}

func (t *tx) Writable() bool {
	return t.batch != nil
}

func (t *tx) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, ErrTxDone
	}
	value, closer, err := t.reader().Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (t *tx) Put(key, value []byte) error {
	if t.done {
		return ErrTxDone
	}
	if t.batch == nil {
		return ErrReadOnly
	}
	return t.batch.Set(key, value, nil)
}

func (t *tx) Delete(key []byte) error {
	if t.done {
		return ErrTxDone
	}
	if t.batch == nil {
		return ErrReadOnly
	}
	return t.batch.Delete(key, nil)
}

func (t *tx) Range(lower, upper []byte, reverse bool) tupledb.BackendIterator {
	if t.done {
		return tupledb.ErrIterator(ErrTxDone)
	}
	iter, err := t.reader().NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return tupledb.ErrIterator(fmt.Errorf("pebblestore: creating iterator: %w", err))
	}
	return &iterator{iter: iter, reverse: reverse}
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	if t.batch == nil {
		return ErrReadOnly
	}
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return err
	}
	return t.close()
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	return t.close()
}

func (t *tx) close() error {
	t.done = true
	var c io.Closer = t.snap
	if t.batch != nil {
		c = t.batch
	}
	return c.Close()
}

type iterator struct {
	iter    *pebble.Iterator
	reverse bool
	started bool
}

func (it *iterator) Next() bool {
	if !it.started {
		it.started = true
		if it.reverse {
			return it.iter.Last()
		}
		return it.iter.First()
	}
	if it.reverse {
		return it.iter.Prev()
	}
	return it.iter.Next()
}

func (it *iterator) Key() []byte {
	return it.iter.Key()
}

func (it *iterator) Value() []byte {
	val, err := it.iter.ValueAndErr()
	if err != nil {
		return nil
	}
	return val
}

func (it *iterator) Err() error {
	return it.iter.Error()
}

func (it *iterator) Close() error {
	return it.iter.Close()
}
