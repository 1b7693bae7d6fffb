package tupledb

import (
	"errors"
	"testing"
)

func keysOf(tups ...Tuple) [][]byte {
	wb := newWriteBuffer()
	for _, tup := range tups {
		wb.put(must(prepareRemove(tup)))
	}
	return wb.keys()
}

func TestConflictHistoryCheck(t *testing.T) {
	var h conflictHistory
	h.add(newCommitRecord(5, 3, keysOf(Tuple{"user", "alice"}, Tuple{"user", "bob"})))
	h.add(newCommitRecord(8, 6, keysOf(Tuple{"score", 10})))

	userScan := must(NormalizeBounds(ScanArgs{Prefix: Tuple{"user"}}))
	scoreScan := must(NormalizeBounds(ScanArgs{Prefix: Tuple{"score"}, Gt: Tuple{5}, Lt: Tuple{20}}))

	tests := []struct {
		name     string
		txID     TxID
		reads    []Bounds
		conflict TxID // zero means no conflict expected
	}{
		{"no reads", 1, nil, 0},
		{"point hit", 4, []Bounds{pointBounds(Tuple{"user", "bob"})}, 3},
		{"point miss", 4, []Bounds{pointBounds(Tuple{"user", "carol"})}, 0},
		{"point before snapshot", 5, []Bounds{pointBounds(Tuple{"user", "bob"})}, 0},
		{"range hit", 2, []Bounds{userScan}, 3},
		{"range later commit", 7, []Bounds{userScan, scoreScan}, 6},
		{"range miss", 7, []Bounds{must(NormalizeBounds(ScanArgs{Prefix: Tuple{"score"}, Gt: Tuple{10}}))}, 0},
		{"empty range", 1, []Bounds{{Gte: Tuple{"z"}, Lt: Tuple{"a"}}}, 0},
		{"all newer", 9, []Bounds{{}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.check(tt.txID, tt.reads)
			if tt.conflict == 0 {
				if err != nil {
					t.Fatalf("** check = %v, wanted no conflict", err)
				}
				return
			}
			var ce *ConflictError
			if !errors.As(err, &ce) || !errors.Is(err, ErrConflict) {
				t.Fatalf("** check = %v, wanted *ConflictError", err)
			}
			deepEqual(t, ce.TxID, tt.txID)
			deepEqual(t, ce.ConflictingTxID, tt.conflict)
			if ce.Tuple == nil {
				t.Errorf("** conflict tuple not reported")
			}
		})
	}
}

func TestConflictHistoryPrune(t *testing.T) {
	h := conflictHistory{maxRecords: 2}
	h.add(newCommitRecord(2, 1, keysOf(Tuple{"a"})))
	h.add(newCommitRecord(4, 3, keysOf(Tuple{"b"}, Tuple{"c"})))
	h.add(newCommitRecord(6, 5, keysOf(Tuple{"d"})))
	deepEqual(t, h.keyCount, 4)

	// oldest open tx is 1: nothing is prunable, but the cap drops seq 2
	h.prune(1)
	deepEqual(t, h.len(), 2)
	deepEqual(t, h.floor, TxID(2))
	deepEqual(t, h.keyCount, 3)

	// tx 1 can no longer be validated
	err := h.check(1, []Bounds{pointBounds(Tuple{"zzz"})})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.ConflictingTxID != 0 {
		t.Errorf("** check below floor = %v, wanted truncated-history conflict", err)
	}
	// but tx 2 still can
	if err := h.check(2, []Bounds{pointBounds(Tuple{"zzz"})}); err != nil {
		t.Errorf("** check at floor = %v", err)
	}

	h.prune(4)
	deepEqual(t, h.len(), 1)
	deepEqual(t, h.floor, TxID(4))

	h.prune(100)
	deepEqual(t, h.len(), 0)
	deepEqual(t, h.floor, TxID(6))
	deepEqual(t, h.keyCount, 0)
}
