package tupledb

import (
	"fmt"
	"runtime/debug"
)

// Indexer maintains derived tuples. It is called inside every commit, once
// per applied operation, and may read and write through tx. Its writes are
// applied in the same commit and fed back to all indexers until no new
// operations appear.
//
// Indexers run while the store's commit lock is held. They must read through
// tx rather than the Store, and must not call Store.Index, Store.Commit,
// Store.Close or commit another transaction, all of which would deadlock.
// Store.Stats is safe.
type Indexer func(tx *Transaction, op Operation) error

// Index registers an indexer. Indexers run in registration order. It waits
// for any commit in progress, so it must not be called from an indexer.
func (s *Store) Index(indexer Indexer) *Store {
	if indexer == nil {
		panic("tupledb: nil indexer")
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.indexers = append(s.indexers, indexer)
	return s
}

// runIndexers drives indexers to a fixed point, starting from the
// operations of the initial writes.
func (run *commitRun) runIndexers(ops []Operation) error {
	indexers := run.store.indexers
	if len(indexers) == 0 {
		return nil
	}
	maxIter := run.store.maxIndexerIterations
	for iter := 0; len(ops) > 0; iter++ {
		if iter >= maxIter {
			return fmt.Errorf("%w: operations still pending after %d iterations, next is %v", ErrFixedPointExceeded, maxIter, ops[0])
		}
		run.next = newWriteBuffer()
		for _, op := range ops {
			for i, indexer := range indexers {
				if err := safelyIndex(indexer, run.tx, op); err != nil {
					return &IndexerError{Index: i, Op: op, Err: err}
				}
			}
		}
		next := run.next
		run.next = nil
		var err error
		ops, err = run.apply(next, true)
		if err != nil {
			return err
		}
		run.derivedOps += len(ops)
	}
	return nil
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyIndex(fn Indexer, tx *Transaction, op Operation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx, op)
}
