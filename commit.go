package tupledb

import (
	"bytes"
	"log/slog"
	"time"
)

// commitRun is the state of a transaction while it commits.
type commitRun struct {
	store *Store
	tx    *Transaction
	btx   BackendTx

	// next collects writes made by indexers in the current generation.
	next *writeBuffer

	initialOps int
	derivedOps int
}

func (s *Store) commitTx(tx *Transaction) (err error) {
	if tx.state != TxOpen {
		return stateErrf("commit: tx %d is %v", tx.id, tx.state)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	start := time.Now()
	tx.state = TxCommitting
	defer func() {
		tx.run = nil
		if err != nil {
			tx.state = TxAborted
			s.stats.aborts.Add(1)
		} else {
			tx.state = TxCommitted
			s.stats.commits.Add(1)
		}
		s.forgetTx(tx)
	}()

	// the write transaction sees everything the snapshot did
	tx.releaseSnapshot()
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.history.check(tx.id, tx.reads); err != nil {
		s.stats.conflicts.Add(1)
		if s.verbose {
			s.logger.Info("tupledb: conflict", "tx", tx.id, "err", err)
		}
		return err
	}

	btx, err := s.backend.Begin(true)
	if err != nil {
		return err
	}
	defer btx.Rollback()

	run := &commitRun{store: s, tx: tx, btx: btx}
	tx.run = run

	ops, err := run.apply(tx.writes, false)
	if err != nil {
		return err
	}
	run.initialOps = len(ops)

	err = run.runIndexers(ops)
	if err != nil {
		if s.verbose {
			s.logger.Info("tupledb: indexing failed", "tx", tx.id, "err", err)
		}
		return err
	}

	if tx.writes.len() == 0 {
		return nil
	}
	seq, err := s.stamp(btx)
	if err != nil {
		return err
	}

	s.history.add(newCommitRecord(seq, tx.id, tx.writes.keys()))
	s.history.prune(s.oldestOpenTx(tx))
	s.stats.historyRecords.Store(int64(s.history.len()))
	s.stats.historyKeys.Store(int64(s.history.keyCount))

	s.logger.Debug("tupledb: committed",
		slog.Uint64("tx", uint64(tx.id)),
		slog.Uint64("seq", uint64(seq)),
		slog.Int("ops", run.initialOps),
		slog.Int("derived", run.derivedOps),
		slog.Int("history", s.history.len()),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// apply writes a generation of pending writes to the backend, removes
// first, each in tuple order, and returns the resulting operations. For
// derived generations, writes that leave the stored value unchanged are
// dropped.
func (run *commitRun) apply(wb *writeBuffer, derived bool) ([]Operation, error) {
	removes, sets := wb.ops()
	ops := make([]Operation, 0, len(removes)+len(sets))
	for _, group := range [][]*pendingWrite{removes, sets} {
		for _, pw := range group {
			op, changed, err := run.applyOne(pw)
			if err != nil {
				return nil, err
			}
			if changed || !derived {
				ops = append(ops, op)
			}
			if run.store.verbose {
				run.store.logger.Debug("tupledb: apply", "tx", run.tx.id, "op", op.Type, "changed", changed, "derived", derived, hexAttr("key", pw.key))
			}
		}
	}
	return ops, nil
}

func (run *commitRun) applyOne(pw *pendingWrite) (Operation, bool, error) {
	op := Operation{Tuple: pw.tuple}
	prevRaw, err := run.btx.Get(pw.key)
	if err != nil {
		return op, false, err
	}
	if prevRaw != nil {
		op.Prev, err = decodeValue(prevRaw)
		if err != nil {
			return op, false, err
		}
		op.HasPrev = true
	}

	if pw.remove {
		op.Type = OpRemove
		if prevRaw == nil {
			return op, false, nil
		}
		return op, true, run.btx.Delete(pw.key)
	}

	op.Type = OpSet
	op.Value, err = decodeValue(pw.raw)
	if err != nil {
		return op, false, err
	}
	if prevRaw != nil && bytes.Equal(prevRaw, pw.raw) {
		return op, false, nil
	}
	return op, true, run.btx.Put(pw.key, pw.raw)
}
