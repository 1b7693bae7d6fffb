package tupledb

import (
	"bytes"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// commitRecord is the write set of one committed transaction.
type commitRecord struct {
	seq    TxID // commit stamp, from the same clock as transaction IDs
	txID   TxID
	keys   [][]byte // sorted
	hashes map[uint64]struct{}
}

func newCommitRecord(seq, txID TxID, keys [][]byte) *commitRecord {
	rec := &commitRecord{
		seq:    seq,
		txID:   txID,
		keys:   keys,
		hashes: make(map[uint64]struct{}, len(keys)),
	}
	for _, k := range keys {
		rec.hashes[xxhash.Sum64(k)] = struct{}{}
	}
	return rec
}

func (rec *commitRecord) hasKey(k []byte) bool {
	if _, ok := rec.hashes[xxhash.Sum64(k)]; !ok {
		return false
	}
	i := sort.Search(len(rec.keys), func(i int) bool {
		return bytes.Compare(rec.keys[i], k) >= 0
	})
	return i < len(rec.keys) && bytes.Equal(rec.keys[i], k)
}

// firstIn returns the first written key within r, or nil.
func (rec *commitRecord) firstIn(r keyRange) []byte {
	i := sort.Search(len(rec.keys), func(i int) bool {
		return bytes.Compare(rec.keys[i], r.lo) >= 0
	})
	if i < len(rec.keys) && (r.hi == nil || bytes.Compare(rec.keys[i], r.hi) < 0) {
		return rec.keys[i]
	}
	return nil
}

// conflictHistory holds the write sets of recent commits in commit order.
// Records with seq <= floor have been dropped, so a transaction with an ID
// below floor can no longer be validated and always conflicts.
type conflictHistory struct {
	records    []*commitRecord
	floor      TxID
	maxRecords int
	keyCount   int
}

type readCheck struct {
	bounds Bounds
	r      keyRange
	point  []byte
}

func (h *conflictHistory) check(txID TxID, reads []Bounds) error {
	if len(reads) == 0 {
		return nil
	}
	if txID < h.floor {
		return &ConflictError{TxID: txID}
	}
	start := sort.Search(len(h.records), func(i int) bool {
		return h.records[i].seq > txID
	})
	if start == len(h.records) {
		return nil
	}

	checks := make([]readCheck, 0, len(reads))
	for _, b := range reads {
		c := readCheck{bounds: b, r: b.keyRange()}
		if c.r.empty() {
			continue
		}
		if b.isPoint() {
			c.point = c.r.lo
		}
		checks = append(checks, c)
	}

	for _, rec := range h.records[start:] {
		for _, c := range checks {
			var hit []byte
			if c.point != nil {
				if rec.hasKey(c.point) {
					hit = c.point
				}
			} else {
				hit = rec.firstIn(c.r)
			}
			if hit != nil {
				tup, _ := decodeKey(hit)
				return &ConflictError{
					TxID:            txID,
					ConflictingTxID: rec.txID,
					Tuple:           tup,
					Bounds:          c.bounds,
				}
			}
		}
	}
	return nil
}

func (h *conflictHistory) add(rec *commitRecord) {
	h.records = append(h.records, rec)
	h.keyCount += len(rec.keys)
}

// prune drops records no open transaction can conflict with, i.e. those
// with seq <= oldest. With no open transactions, everything up to now goes.
// It then enforces maxRecords, raising the floor.
func (h *conflictHistory) prune(oldest TxID) {
	n := sort.Search(len(h.records), func(i int) bool {
		return h.records[i].seq > oldest
	})
	if h.maxRecords > 0 && len(h.records)-n > h.maxRecords {
		n = len(h.records) - h.maxRecords
	}
	if n == 0 {
		return
	}
	for _, rec := range h.records[:n] {
		h.keyCount -= len(rec.keys)
	}
	if last := h.records[n-1].seq; last > h.floor {
		h.floor = last
	}
	clear(h.records[:n])
	h.records = h.records[n:]
}

func (h *conflictHistory) len() int {
	return len(h.records)
}
