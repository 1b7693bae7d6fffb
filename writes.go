package tupledb

import (
	"bytes"
	"slices"
	"sort"
)

// Writes is a batch of mutations. When the same tuple appears in both
// lists, the set wins, since removes are applied first.
type Writes struct {
	Set    []TupleValuePair
	Remove []Tuple
}

func (w Writes) IsEmpty() bool {
	return len(w.Set) == 0 && len(w.Remove) == 0
}

type pendingWrite struct {
	tuple  Tuple
	key    []byte
	raw    []byte // encoded value, nil for removes
	remove bool
}

// writeBuffer holds the pending writes of a transaction, one per tuple,
// the last write winning.
type writeBuffer struct {
	byKey  map[string]*pendingWrite
	sorted []*pendingWrite // lazily rebuilt, nil when stale
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{byKey: make(map[string]*pendingWrite)}
}

func (wb *writeBuffer) len() int {
	return len(wb.byKey)
}

func (wb *writeBuffer) lookup(key []byte) *pendingWrite {
	return wb.byKey[string(key)]
}

func (wb *writeBuffer) put(pw *pendingWrite) {
	if _, found := wb.byKey[string(pw.key)]; !found {
		wb.sorted = nil
	} else if wb.sorted != nil {
		i := wb.index(pw.key)
		wb.sorted[i] = pw
	}
	wb.byKey[string(pw.key)] = pw
}

func (wb *writeBuffer) index(key []byte) int {
	return sort.Search(len(wb.sorted), func(i int) bool {
		return bytes.Compare(wb.sorted[i].key, key) >= 0
	})
}

func (wb *writeBuffer) all() []*pendingWrite {
	if wb.sorted == nil {
		wb.sorted = make([]*pendingWrite, 0, len(wb.byKey))
		for _, pw := range wb.byKey {
			wb.sorted = append(wb.sorted, pw)
		}
		slices.SortFunc(wb.sorted, func(a, b *pendingWrite) int {
			return bytes.Compare(a.key, b.key)
		})
	}
	return wb.sorted
}

// inRange returns the pending writes within r, in scan order.
func (wb *writeBuffer) inRange(r keyRange, reverse bool) []*pendingWrite {
	all := wb.all()
	start := wb.index(r.lo)
	end := len(all)
	if r.hi != nil {
		end = wb.index(r.hi)
	}
	if end <= start {
		return nil
	}
	out := slices.Clone(all[start:end])
	if reverse {
		slices.Reverse(out)
	}
	return out
}

// ops splits the buffer into removes and sets, each in tuple order.
func (wb *writeBuffer) ops() (removes, sets []*pendingWrite) {
	for _, pw := range wb.all() {
		if pw.remove {
			removes = append(removes, pw)
		} else {
			sets = append(sets, pw)
		}
	}
	return
}

func (wb *writeBuffer) keys() [][]byte {
	all := wb.all()
	keys := make([][]byte, len(all))
	for i, pw := range all {
		keys[i] = pw.key
	}
	return keys
}

// writes renders the buffer back into a Writes batch.
func (wb *writeBuffer) writes() (Writes, error) {
	var w Writes
	removes, sets := wb.ops()
	for _, pw := range removes {
		w.Remove = append(w.Remove, slices.Clone(pw.tuple))
	}
	for _, pw := range sets {
		v, err := decodeValue(pw.raw)
		if err != nil {
			return Writes{}, err
		}
		w.Set = append(w.Set, TupleValuePair{slices.Clone(pw.tuple), v})
	}
	return w, nil
}

// prepareSet validates and encodes a set.
func prepareSet(tup Tuple, v any) (*pendingWrite, error) {
	tup, key, err := prepareKey(tup)
	if err != nil {
		return nil, err
	}
	nv, err := normalizeValue(v, "value")
	if err != nil {
		return nil, argErrf(tup, err, "")
	}
	raw, err := encodeValue(nv)
	if err != nil {
		return nil, argErrf(tup, err, "value")
	}
	return &pendingWrite{tuple: tup, key: key, raw: raw}, nil
}

func prepareRemove(tup Tuple) (*pendingWrite, error) {
	tup, key, err := prepareKey(tup)
	if err != nil {
		return nil, err
	}
	return &pendingWrite{tuple: tup, key: key, remove: true}, nil
}

// prepareKey normalizes a tuple destined for storage.
func prepareKey(tup Tuple) (Tuple, []byte, error) {
	if len(tup) == 0 {
		return nil, nil, argErrf(tup, nil, "empty tuple cannot be stored")
	}
	tup, err := NormalizeTuple(tup, false)
	if err != nil {
		return nil, nil, err
	}
	return tup, encodeKey(tup), nil
}

// prepareWrites validates a whole batch; removes come first so that a set
// of the same tuple overrides them.
func prepareWrites(w Writes) ([]*pendingWrite, error) {
	out := make([]*pendingWrite, 0, len(w.Remove)+len(w.Set))
	for _, tup := range w.Remove {
		pw, err := prepareRemove(tup)
		if err != nil {
			return nil, err
		}
		out = append(out, pw)
	}
	for _, pair := range w.Set {
		pw, err := prepareSet(pair.Tuple, pair.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, pw)
	}
	return out, nil
}
