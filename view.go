package tupledb

import (
	"bytes"
	"fmt"
	"slices"
)

// ReadOnlyTupleStorage is the read surface shared by Store, Snapshot and
// Transaction. Get reports ok == false for an absent tuple, which is
// distinct from a stored null.
type ReadOnlyTupleStorage interface {
	Get(tup Tuple) (v Value, ok bool, err error)
	Exists(tup Tuple) (bool, error)
	Scan(args ScanArgs) ([]TupleValuePair, error)
}

var (
	_ ReadOnlyTupleStorage = (*Store)(nil)
	_ ReadOnlyTupleStorage = (*Snapshot)(nil)
	_ ReadOnlyTupleStorage = (*Transaction)(nil)
)

// Snapshot pins a read-only backend transaction, so that all of its reads
// observe the same committed state. Close it when done.
type Snapshot struct {
	btx    BackendTx
	closed bool
}

func (s *Store) Snapshot() (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	btx, err := s.backend.Begin(false)
	if err != nil {
		return nil, err
	}
	return &Snapshot{btx: btx}, nil
}

func (snap *Snapshot) Get(tup Tuple) (Value, bool, error) {
	if snap.closed {
		return nil, false, stateErrf("snapshot closed")
	}
	_, key, err := prepareReadKey(tup)
	if err != nil {
		return nil, false, err
	}
	return getIn(snap.btx, key)
}

func (snap *Snapshot) Exists(tup Tuple) (bool, error) {
	_, ok, err := snap.Get(tup)
	return ok, err
}

func (snap *Snapshot) Scan(args ScanArgs) ([]TupleValuePair, error) {
	if snap.closed {
		return nil, stateErrf("snapshot closed")
	}
	b, err := NormalizeBounds(args)
	if err != nil {
		return nil, err
	}
	return scanIn(snap.btx, b, nil)
}

func (snap *Snapshot) Close() error {
	if snap.closed {
		return nil
	}
	snap.closed = true
	return snap.btx.Rollback()
}

func (s *Store) Get(tup Tuple) (Value, bool, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, false, err
	}
	defer snap.Close()
	return snap.Get(tup)
}

func (s *Store) Exists(tup Tuple) (bool, error) {
	_, ok, err := s.Get(tup)
	return ok, err
}

func (s *Store) Scan(args ScanArgs) ([]TupleValuePair, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Close()
	return snap.Scan(args)
}

// prepareReadKey normalizes a tuple passed to get or exists.
func prepareReadKey(tup Tuple) (Tuple, []byte, error) {
	if len(tup) == 0 {
		return nil, nil, argErrf(tup, nil, "empty tuple")
	}
	tup, err := NormalizeTuple(tup, false)
	if err != nil {
		return nil, nil, err
	}
	return tup, encodeKey(tup), nil
}

func getIn(btx BackendTx, key []byte) (Value, bool, error) {
	raw, err := btx.Get(key)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func decodePair(key, raw []byte) (TupleValuePair, error) {
	tup, err := decodeKey(key)
	if err != nil {
		return TupleValuePair{}, err
	}
	v, err := decodeValue(raw)
	if err != nil {
		return TupleValuePair{}, fmt.Errorf("%v: %w", tup, err)
	}
	return TupleValuePair{tup, v}, nil
}

func pendingPair(pw *pendingWrite) (TupleValuePair, error) {
	v, err := decodeValue(pw.raw)
	if err != nil {
		return TupleValuePair{}, err
	}
	return TupleValuePair{slices.Clone(pw.tuple), v}, nil
}

// scanIn reads b from btx, overlaid with pending writes if any. Pending
// sets replace or add pairs, pending removes hide them.
func scanIn(btx BackendTx, b Bounds, pending *writeBuffer) ([]TupleValuePair, error) {
	r := b.keyRange()
	if r.empty() {
		return nil, nil
	}

	var local []*pendingWrite
	if pending != nil {
		local = pending.inRange(r, b.Reverse)
	}
	before := func(x, y []byte) bool {
		return bytes.Compare(x, y) < 0
	}
	if b.Reverse {
		before = func(x, y []byte) bool {
			return bytes.Compare(x, y) > 0
		}
	}

	it := btx.Range(r.lo, r.hi, b.Reverse)
	defer it.Close()
	nextStored := func() bool {
		for it.Next() {
			if pending == nil || pending.lookup(it.Key()) == nil {
				return true
			}
		}
		return false
	}

	var out []TupleValuePair
	hasStored := nextStored()
	for b.Limit == 0 || len(out) < b.Limit {
		if hasStored && (len(local) == 0 || before(it.Key(), local[0].key)) {
			pair, err := decodePair(it.Key(), it.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, pair)
			hasStored = nextStored()
			continue
		}
		if len(local) == 0 {
			break
		}
		pw := local[0]
		local = local[1:]
		if pw.remove {
			continue
		}
		pair, err := pendingPair(pw)
		if err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
