package tupledb

import (
	"bytes"
	"strconv"
	"strings"
)

// ScanArgs describes a range scan. At most one of Gt/Gte and one of Lt/Lte
// may be set. With Prefix, the scan defaults to every tuple starting with
// the prefix, and any explicit bound is taken relative to the prefix.
// Limit 0 means no limit.
type ScanArgs struct {
	Gt      Tuple
	Gte     Tuple
	Lt      Tuple
	Lte     Tuple
	Prefix  Tuple
	Limit   int
	Reverse bool
}

// Bounds is a normalized read range. Transactions record one for every
// get, exists and scan, and commit checks them against writes committed
// by other transactions in the meantime.
type Bounds struct {
	Gt      Tuple
	Gte     Tuple
	Lt      Tuple
	Lte     Tuple
	Limit   int
	Reverse bool
}

// NormalizeBounds resolves ScanArgs into Bounds, folding the prefix into
// explicit endpoints.
func NormalizeBounds(args ScanArgs) (Bounds, error) {
	if args.Gt != nil && args.Gte != nil {
		return Bounds{}, argErrf(nil, nil, "both gt and gte are set")
	}
	if args.Lt != nil && args.Lte != nil {
		return Bounds{}, argErrf(nil, nil, "both lt and lte are set")
	}
	if args.Limit < 0 {
		return Bounds{}, argErrf(nil, nil, "negative limit %d", args.Limit)
	}

	prefix, err := NormalizeTuple(args.Prefix, true)
	if err != nil {
		return Bounds{}, err
	}
	b := Bounds{Limit: args.Limit, Reverse: args.Reverse}
	for _, pair := range []struct {
		dst *Tuple
		src Tuple
	}{{&b.Gt, args.Gt}, {&b.Gte, args.Gte}, {&b.Lt, args.Lt}, {&b.Lte, args.Lte}} {
		if pair.src == nil {
			continue
		}
		tup, err := NormalizeTuple(pair.src, true)
		if err != nil {
			return Bounds{}, err
		}
		if prefix != nil {
			tup = prefix.Append(tup...)
		}
		*pair.dst = tup
	}
	if prefix != nil {
		if b.Gt == nil && b.Gte == nil {
			b.Gte = prefix
		}
		if b.Lt == nil && b.Lte == nil {
			b.Lt = prefix.Append(Max)
		}
	}
	return b, nil
}

func pointBounds(tup Tuple) Bounds {
	return Bounds{Gte: tup, Lte: tup}
}

// normalized re-validates caller-constructed bounds.
func (b Bounds) normalized() (Bounds, error) {
	if b.Gt != nil && b.Gte != nil {
		return Bounds{}, argErrf(nil, nil, "both gt and gte are set")
	}
	if b.Lt != nil && b.Lte != nil {
		return Bounds{}, argErrf(nil, nil, "both lt and lte are set")
	}
	out := Bounds{Limit: b.Limit, Reverse: b.Reverse}
	var err error
	if out.Gt, err = NormalizeTuple(b.Gt, true); err != nil {
		return Bounds{}, err
	}
	if out.Gte, err = NormalizeTuple(b.Gte, true); err != nil {
		return Bounds{}, err
	}
	if out.Lt, err = NormalizeTuple(b.Lt, true); err != nil {
		return Bounds{}, err
	}
	if out.Lte, err = NormalizeTuple(b.Lte, true); err != nil {
		return Bounds{}, err
	}
	return out, nil
}

// keyRange is the half-open byte range [lo, hi) covered by b. A nil hi
// means unbounded.
type keyRange struct {
	lo, hi []byte
}

func (b Bounds) keyRange() keyRange {
	var r keyRange
	if b.Gt != nil {
		r.lo = keySuccessor(encodeKey(b.Gt))
	} else if b.Gte != nil {
		r.lo = encodeKey(b.Gte)
	}
	if b.Lt != nil {
		r.hi = encodeKey(b.Lt)
	} else if b.Lte != nil {
		r.hi = keySuccessor(encodeKey(b.Lte))
	}
	return r
}

func (r keyRange) empty() bool {
	return r.hi != nil && bytes.Compare(r.lo, r.hi) >= 0
}

func (r keyRange) contains(key []byte) bool {
	if bytes.Compare(key, r.lo) < 0 {
		return false
	}
	return r.hi == nil || bytes.Compare(key, r.hi) < 0
}

// Contains reports whether tup falls within the range, ignoring Limit.
func (b Bounds) Contains(tup Tuple) bool {
	tup, err := NormalizeTuple(tup, false)
	if err != nil {
		return false
	}
	b, err = b.normalized()
	if err != nil {
		return false
	}
	return b.keyRange().contains(encodeKey(tup))
}

// isPoint reports whether b matches exactly one tuple, as recorded by get
// and exists.
func (b Bounds) isPoint() bool {
	return b.Gte != nil && b.Lte != nil && CompareTuple(b.Gte, b.Lte) == 0
}

// narrowed shrinks a scan that stopped at its limit to the range it
// actually covered, ending at the last returned tuple.
func (b Bounds) narrowed(last Tuple) Bounds {
	if b.Reverse {
		b.Gt, b.Gte = nil, last
	} else {
		b.Lt, b.Lte = nil, last
	}
	return b
}

func (b Bounds) String() string {
	var parts []string
	add := func(name string, tup Tuple) {
		if tup != nil {
			parts = append(parts, name+": "+tup.String())
		}
	}
	add("gt", b.Gt)
	add("gte", b.Gte)
	add("lt", b.Lt)
	add("lte", b.Lte)
	if b.Limit > 0 {
		parts = append(parts, "limit: "+strconv.Itoa(b.Limit))
	}
	if b.Reverse {
		parts = append(parts, "reverse")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
