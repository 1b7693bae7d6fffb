package tupledb

import (
	"bytes"
	"encoding/hex"
	"math"
	"reflect"
	"slices"
	"testing"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		input    Tuple
		expected string
	}{
		{Tuple{}, ""},
		{Tuple{nil}, "03"},
		{Tuple{true, false}, "0504"},
		{Tuple{0.0}, "068000000000000000"},
		{Tuple{1.0}, "06bff0000000000000"},
		{Tuple{-1.0}, "06400fffffffffffff"},
		{Tuple{"a"}, "07610000"},
		{Tuple{""}, "070000"},
		{Tuple{"a\x00b"}, "076100016200" + "00"},
		{Tuple{"a", "b"}, "0761000007620000"},
		{Tuple{[]any{}}, "0801"},
		{Tuple{[]any{"x", nil}}, "0807780000" + "0301"},
		{Tuple{map[string]any{}}, "0901"},
		{Tuple{map[string]any{"b": 1.0, "a": nil}}, "09" + "0261000003" + "02620000" + "06bff0000000000000" + "01"},
		{Tuple{"a", Min}, "0761000000"},
		{Tuple{"a", Max}, "07610000ff"},
	}
	for _, tt := range tests {
		encoded := encodeKey(tt.input)
		encodedStr := hex.EncodeToString(encoded)
		if encodedStr != tt.expected {
			t.Errorf("** encodeKey(%v) = %s, wanted %s", tt.input, encodedStr, tt.expected)
			continue
		}
		if containsSentinel(tt.input) {
			if _, err := decodeKey(encoded); err == nil {
				t.Errorf("** decodeKey(%s) succeeded, wanted sentinel error", encodedStr)
			}
			continue
		}
		decoded, err := decodeKey(encoded)
		if err != nil {
			t.Errorf("** decodeKey(%s) failed: %v", encodedStr, err)
		} else if !reflect.DeepEqual(decoded, tt.input) {
			t.Errorf("** decodeKey(%s) = %v, wanted %v", encodedStr, decoded, tt.input)
		}
	}
}

func containsSentinel(tup Tuple) bool {
	for _, v := range tup {
		if _, ok := v.(Sentinel); ok {
			return true
		}
	}
	return false
}

func TestEncodeKeyNeverNil(t *testing.T) {
	if encodeKey(Tuple{}) == nil {
		t.Errorf("** encodeKey(empty) = nil, wanted empty non-nil slice")
	}
}

func TestDecodeKeyErrors(t *testing.T) {
	for _, s := range []string{
		"06bff0",     // truncated number
		"0761",       // unterminated string
		"07610002",   // bad escape
		"0803",       // unterminated array
		"0903",       // object without entry tag
		"0a",         // unknown tag
		"00",         // Min
		"07610000ff", // Max
	} {
		raw, _ := hex.DecodeString(s)
		if tup, err := decodeKey(raw); err == nil {
			t.Errorf("** decodeKey(%s) = %v, wanted error", s, tup)
		}
	}
}

// orderedTuples is sorted according to the documented total order.
var orderedTuples = []Tuple{
	{},
	{Min},
	{nil},
	{nil, nil},
	{false},
	{true},
	{-1e300},
	{-2.5},
	{-1.0},
	{-1e-300},
	{0.0},
	{1e-300},
	{1.0},
	{2.5},
	{1e300},
	{""},
	{"\x00"},
	{"\x00\x00"},
	{"\x01"},
	{"A"},
	{"a"},
	{"a", nil},
	{"a", "b"},
	{"a", Max},
	{"a\x00"},
	{"ab"},
	{"b"},
	{"é"},
	{[]any{}},
	{[]any{nil}},
	{[]any{nil, 1.0}},
	{[]any{1.0}},
	{[]any{[]any{}}},
	{[]any{map[string]any{}}},
	{map[string]any{}},
	{map[string]any{"a": nil}},
	{map[string]any{"a": nil, "b": nil}},
	{map[string]any{"a": 1.0}},
	{map[string]any{"b": nil}},
	{Max},
}

func TestKeyOrderMatchesCompare(t *testing.T) {
	for i, a := range orderedTuples {
		for j, b := range orderedTuples {
			expected := cmpInt(i, j)
			if actual := CompareTuple(a, b); actual != expected {
				t.Errorf("** CompareTuple(%v, %v) = %d, wanted %d", a, b, actual, expected)
			}
			if actual := bytes.Compare(encodeKey(a), encodeKey(b)); actual != expected {
				t.Errorf("** bytes.Compare(encodeKey(%v), encodeKey(%v)) = %d, wanted %d", a, b, actual, expected)
			}
		}
	}
}

func TestKeySortRoundTrip(t *testing.T) {
	var keys [][]byte
	for _, tup := range orderedTuples {
		if !containsSentinel(tup) && len(tup) > 0 {
			keys = append(keys, encodeKey(tup))
		}
	}
	shuffled := slices.Clone(keys)
	slices.Reverse(shuffled)
	slices.SortFunc(shuffled, bytes.Compare)
	for i := range keys {
		if !bytes.Equal(keys[i], shuffled[i]) {
			t.Fatalf("** sorted key %d = %x, wanted %x", i, shuffled[i], keys[i])
		}
	}
}

func TestKeySuccessor(t *testing.T) {
	k := encodeKey(Tuple{"a"})
	succ := keySuccessor(k)
	if hex.EncodeToString(succ) != "0761000000" {
		t.Errorf("** keySuccessor = %x", succ)
	}
	if hex.EncodeToString(k) != "07610000" {
		t.Errorf("** keySuccessor modified its input: %x", k)
	}
	// nothing fits between a key and its successor
	ext := encodeKey(Tuple{"a", nil})
	if bytes.Compare(succ, ext) >= 0 {
		t.Errorf("** successor %x not below extension %x", succ, ext)
	}
}

func TestOrderedFloatBits(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.5, -0.5, math.MaxFloat64, -math.MaxFloat64, math.SmallestNonzeroFloat64} {
		if got := floatFromOrderedBits(orderedFloatBits(f)); got != f {
			t.Errorf("** float round trip of %v = %v", f, got)
		}
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
