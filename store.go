package tupledb

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultMaxIndexerIterations = 100
	DefaultMaxConflictHistory   = 10000
)

type Store struct {
	backend Backend
	logger  *slog.Logger
	verbose bool

	maxIndexerIterations int

	// clock issues both transaction IDs and commit stamps.
	clock atomic.Uint64
	// stampMu pairs taking a snapshot with issuing its ID, and a backend
	// commit with its stamp, so that a commit is visible to a transaction's
	// snapshot iff its stamp is below the transaction's ID.
	stampMu sync.Mutex
	// commitMu serializes commits and guards indexers and history.
	commitMu sync.Mutex
	indexers []Indexer
	history  conflictHistory

	closed atomic.Bool
	stats  counters

	txns     map[*Transaction]struct{}
	txnsLock sync.Mutex
}

type Options struct {
	// Logger defaults to slog.Default().
	Logger  *slog.Logger
	Verbose bool

	// MaxIndexerIterations bounds the number of derived generations a
	// single commit may produce.
	MaxIndexerIterations int

	// MaxConflictHistory bounds the number of retained commit records.
	// Transactions older than the dropped records fail to commit with
	// ErrConflict.
	MaxConflictHistory int
}

func Open(backend Backend, opt Options) (*Store, error) {
	if backend == nil {
		return nil, argErrf(nil, nil, "nil backend")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.MaxIndexerIterations == 0 {
		opt.MaxIndexerIterations = DefaultMaxIndexerIterations
	} else if opt.MaxIndexerIterations < 0 {
		return nil, argErrf(nil, nil, "negative MaxIndexerIterations")
	}
	if opt.MaxConflictHistory == 0 {
		opt.MaxConflictHistory = DefaultMaxConflictHistory
	} else if opt.MaxConflictHistory < 0 {
		return nil, argErrf(nil, nil, "negative MaxConflictHistory")
	}

	s := &Store{
		backend:              backend,
		logger:               opt.Logger,
		verbose:              opt.Verbose,
		maxIndexerIterations: opt.MaxIndexerIterations,
		history:              conflictHistory{maxRecords: opt.MaxConflictHistory},
		txns:                 make(map[*Transaction]struct{}),
	}
	return s, nil
}

// Backend returns the underlying storage.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend. Open transactions can no longer commit.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	s.txnsLock.Lock()
	for tx := range s.txns {
		tx.releaseSnapshot()
	}
	s.txnsLock.Unlock()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	err := s.backend.Close()
	if err != nil {
		return fmt.Errorf("tupledb: closing: %w", err)
	}
	return nil
}

func (s *Store) tick() TxID {
	return TxID(s.clock.Add(1))
}

// Transact starts a new transaction reading from the current committed
// state. The transaction pins a backend snapshot until it is committed or
// discarded.
func (s *Store) Transact() (*Transaction, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	tx, err := s.beginTx()
	if err != nil {
		return nil, err
	}
	if s.verbose {
		tx.stack = string(debug.Stack())
	}
	s.addTx(tx)
	if s.closed.Load() {
		// raced with Close, which may have missed this one
		tx.Discard()
		return nil, ErrClosed
	}
	return tx, nil
}

func (s *Store) beginTx() (*Transaction, error) {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	snap, err := s.backend.Begin(false)
	if err != nil {
		return nil, err
	}
	tx := s.newTx(s.tick())
	tx.snap = snap
	return tx, nil
}

// stamp commits btx and issues its commit stamp.
func (s *Store) stamp(btx BackendTx) (TxID, error) {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	if err := btx.Commit(); err != nil {
		return 0, err
	}
	return s.tick(), nil
}

// Commit writes w in a single transaction, running indexers like
// Transaction.Commit does. If txID is non-zero, it must be the ID of a
// transaction (normally still open) whose snapshot reads were recorded in
// reads; the commit fails with ErrConflict if any of them were overwritten
// since. With txID == 0, reads must be empty.
func (s *Store) Commit(w Writes, txID TxID, reads []Bounds) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if txID == 0 && len(reads) > 0 {
		return argErrf(nil, nil, "reads without a transaction ID")
	}
	if uint64(txID) > s.clock.Load() {
		return argErrf(nil, nil, "unknown transaction ID %d", txID)
	}
	if txID == 0 {
		txID = s.tick()
	}

	tx := s.newTx(txID)
	for _, b := range reads {
		nb, err := b.normalized()
		if err != nil {
			return err
		}
		tx.reads = append(tx.reads, nb)
	}
	if err := tx.Write(w); err != nil {
		tx.state = TxAborted
		return err
	}
	return s.commitTx(tx)
}

func (s *Store) addTx(tx *Transaction) {
	s.txnsLock.Lock()
	defer s.txnsLock.Unlock()
	s.txns[tx] = struct{}{}
	tx.tracked = true
}

func (s *Store) forgetTx(tx *Transaction) {
	if !tx.tracked {
		return
	}
	s.txnsLock.Lock()
	defer s.txnsLock.Unlock()
	delete(s.txns, tx)
	tx.tracked = false
}

// oldestOpenTx returns the smallest ID among open transactions other than
// except, or the current clock if there are none.
func (s *Store) oldestOpenTx(except *Transaction) TxID {
	oldest := TxID(s.clock.Load())
	s.txnsLock.Lock()
	defer s.txnsLock.Unlock()
	for tx := range s.txns {
		if tx != except && tx.id < oldest {
			oldest = tx.id
		}
	}
	return oldest
}

func (s *Store) DescribeOpenTxns() string {
	s.txnsLock.Lock()
	txns := make([]*Transaction, 0, len(s.txns))
	for tx := range s.txns {
		txns = append(txns, tx)
	}
	s.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Transaction) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 || tx.stack == "" {
			fmt.Fprintf(&buf, "\n---\ntx %d open for %d ms\n", tx.id, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\ntx %d open for %d ms:\n%s", tx.id, ms, tx.stack)
		}
	}

	return buf.String()
}
