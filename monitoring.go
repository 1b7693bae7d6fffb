package tupledb

import "sync/atomic"

type counters struct {
	commits   atomic.Uint64
	conflicts atomic.Uint64
	aborts    atomic.Uint64

	// mirrors of the conflict history size, readable without commitMu
	historyRecords atomic.Int64
	historyKeys    atomic.Int64
}

// Stats is a point-in-time view of store activity.
type Stats struct {
	Commits   uint64 // successful commits
	Conflicts uint64 // commits rejected by conflict detection
	Aborts    uint64 // all failed commits, conflicts included

	OpenTransactions int
	HistoryRecords   int
	HistoryKeys      int
	LastTxID         TxID
}

// Stats does not take the commit lock, so it is safe to call from indexers.
func (s *Store) Stats() Stats {
	st := Stats{
		Commits:   s.stats.commits.Load(),
		Conflicts: s.stats.conflicts.Load(),
		Aborts:    s.stats.aborts.Load(),
		LastTxID:  TxID(s.clock.Load()),
	}
	s.txnsLock.Lock()
	st.OpenTransactions = len(s.txns)
	s.txnsLock.Unlock()

	st.HistoryRecords = int(s.stats.historyRecords.Load())
	st.HistoryKeys = int(s.stats.historyKeys.Load())
	return st
}
