package tupledb

import (
	"cmp"
	"fmt"
	"slices"
)

// Rank of each kind of value in the total order. Min and Max bracket
// everything else.
const (
	rankMin = iota
	rankNull
	rankBool
	rankNumber
	rankString
	rankArray
	rankObject
	rankMax
)

func valueRank(v Value) int {
	switch v := v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case float64:
		return rankNumber
	case string:
		return rankString
	case []any:
		return rankArray
	case map[string]any:
		return rankObject
	case Sentinel:
		if v == Min {
			return rankMin
		}
		return rankMax
	default:
		panic(fmt.Errorf("tupledb: cannot order non-normalized value of type %T", v))
	}
}

// CompareValue orders two normalized values:
// Min < null < false < true < numbers < strings < arrays < objects < Max.
// Strings compare by code point, arrays element-wise with a shorter prefix
// first, objects by their entries sorted by key.
func CompareValue(a, b Value) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch a := a.(type) {
	case bool:
		b := b.(bool)
		if a == b {
			return 0
		} else if !a {
			return -1
		}
		return 1
	case float64:
		return cmp.Compare(a, b.(float64))
	case string:
		return cmp.Compare(a, b.(string))
	case []any:
		return compareSeq(a, b.([]any))
	case map[string]any:
		return compareObjects(a, b.(map[string]any))
	default:
		return 0 // null, or the same sentinel
	}
}

// CompareTuple orders tuples element-wise; a strict prefix sorts first.
func CompareTuple(a, b Tuple) int {
	return compareSeq(a, b)
}

func compareSeq[S ~[]Value](a, b S) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := CompareValue(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareObjects(a, b map[string]any) int {
	ak, bk := sortedKeys(a), sortedKeys(b)
	n := min(len(ak), len(bk))
	for i := 0; i < n; i++ {
		if c := cmp.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := CompareValue(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(ak), len(bk))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
