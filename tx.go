package tupledb

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// TxID identifies a transaction. IDs grow monotonically and double as
// snapshot stamps: a transaction conflicts only with writes committed after
// its ID was issued.
type TxID uint64

type TxState int

const (
	TxOpen TxState = iota
	TxCommitting
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitting:
		return "committing"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	default:
		return fmt.Sprintf("invalid state %d", int(s))
	}
}

// Transaction buffers writes and records reads until Commit. Reads see the
// transaction's own pending writes on top of the committed state as of
// Transact.
//
// Once committed or aborted, reads and writes fail with ErrInvalidState.
// ID, State, Store, Writes and Reads keep working, so callers can inspect a
// finished transaction.
//
// A Transaction must not be used from multiple goroutines at once.
type Transaction struct {
	store  *Store
	id     TxID
	state  TxState
	writes *writeBuffer
	reads  []Bounds

	// snap is the committed state this transaction reads. It is released on
	// commit, on discard, and by Store.Close.
	snap     BackendTx
	snapLock sync.Mutex

	// run is set while committing; reads and writes made by indexers go
	// through it.
	run *commitRun

	tracked   bool
	startTime time.Time
	stack     string
}

func (s *Store) newTx(id TxID) *Transaction {
	return &Transaction{
		store:     s,
		id:        id,
		writes:    newWriteBuffer(),
		startTime: time.Now(),
	}
}

func (tx *Transaction) ID() TxID {
	return tx.id
}

func (tx *Transaction) Store() *Store {
	return tx.store
}

func (tx *Transaction) State() TxState {
	return tx.state
}

// Writes returns a copy of the pending writes, each list in tuple order.
func (tx *Transaction) Writes() Writes {
	return must(tx.writes.writes())
}

// Reads returns the bounds recorded so far.
func (tx *Transaction) Reads() []Bounds {
	return slices.Clone(tx.reads)
}

func (tx *Transaction) checkUsable(op string) error {
	switch tx.state {
	case TxOpen, TxCommitting:
		return nil
	default:
		return stateErrf("%s: tx %d is %v", op, tx.id, tx.state)
	}
}

func (tx *Transaction) recordRead(b Bounds) {
	if tx.state == TxOpen {
		tx.reads = append(tx.reads, b)
	}
}

// reader returns the backend transaction to read committed state from.
func (tx *Transaction) reader() (BackendTx, func(), error) {
	if tx.run != nil {
		return tx.run.btx, func() {}, nil
	}
	tx.snapLock.Lock()
	if tx.snap == nil {
		tx.snapLock.Unlock()
		return nil, nil, ErrClosed
	}
	return tx.snap, tx.snapLock.Unlock, nil
}

func (tx *Transaction) releaseSnapshot() {
	tx.snapLock.Lock()
	defer tx.snapLock.Unlock()
	if tx.snap != nil {
		tx.snap.Rollback()
		tx.snap = nil
	}
}

func (tx *Transaction) Get(tup Tuple) (Value, bool, error) {
	if err := tx.checkUsable("get"); err != nil {
		return nil, false, err
	}
	tup, key, err := prepareReadKey(tup)
	if err != nil {
		return nil, false, err
	}
	tx.recordRead(pointBounds(tup))

	if pw := tx.writes.lookup(key); pw != nil {
		if pw.remove {
			return nil, false, nil
		}
		v, err := decodeValue(pw.raw)
		return v, err == nil, err
	}

	btx, release, err := tx.reader()
	if err != nil {
		return nil, false, err
	}
	defer release()
	return getIn(btx, key)
}

func (tx *Transaction) Exists(tup Tuple) (bool, error) {
	_, ok, err := tx.Get(tup)
	return ok, err
}

// Scan returns the pairs within args, merging pending writes with the
// committed state. When a limit cuts the scan short, the recorded read only
// extends to the last returned tuple.
func (tx *Transaction) Scan(args ScanArgs) ([]TupleValuePair, error) {
	if err := tx.checkUsable("scan"); err != nil {
		return nil, err
	}
	b, err := NormalizeBounds(args)
	if err != nil {
		return nil, err
	}

	btx, release, err := tx.reader()
	if err != nil {
		return nil, err
	}
	defer release()
	pairs, err := scanIn(btx, b, tx.writes)
	if err != nil {
		return nil, err
	}

	if b.Limit > 0 && len(pairs) == b.Limit {
		tx.recordRead(b.narrowed(pairs[len(pairs)-1].Tuple))
	} else {
		tx.recordRead(b)
	}
	return pairs, nil
}

// Set stages tup = v. The previous pending write of tup, if any, is
// replaced.
func (tx *Transaction) Set(tup Tuple, v any) error {
	if err := tx.checkUsable("set"); err != nil {
		return err
	}
	pw, err := prepareSet(tup, v)
	if err != nil {
		return err
	}
	tx.put(pw)
	return nil
}

// Remove stages the removal of tup. Removing an absent tuple is not an
// error.
func (tx *Transaction) Remove(tup Tuple) error {
	if err := tx.checkUsable("remove"); err != nil {
		return err
	}
	pw, err := prepareRemove(tup)
	if err != nil {
		return err
	}
	tx.put(pw)
	return nil
}

// Write stages a batch: removes first, then sets. Nothing is staged if any
// part of the batch is invalid.
func (tx *Transaction) Write(w Writes) error {
	if err := tx.checkUsable("write"); err != nil {
		return err
	}
	pws, err := prepareWrites(w)
	if err != nil {
		return err
	}
	for _, pw := range pws {
		tx.put(pw)
	}
	return nil
}

func (tx *Transaction) put(pw *pendingWrite) {
	tx.writes.put(pw)
	if tx.run != nil {
		tx.run.next.put(pw)
	}
}

// Commit validates the recorded reads and atomically applies the pending
// writes together with everything indexers derive from them. On any error
// nothing is applied and the transaction is aborted.
func (tx *Transaction) Commit() error {
	if tx.state == TxCommitting {
		return stateErrf("commit: tx %d is already committing", tx.id)
	}
	return tx.store.commitTx(tx)
}

// Discard aborts an open transaction, releasing it so that conflict
// history it pins can be pruned. It does nothing on finished transactions,
// so it is safe to defer.
func (tx *Transaction) Discard() {
	if tx.state != TxOpen {
		return
	}
	tx.state = TxAborted
	tx.releaseSnapshot()
	tx.store.forgetTx(tx)
}
