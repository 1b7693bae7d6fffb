package tupledb

import (
	"encoding/binary"
	"math"
	"slices"
)

// Key format: the concatenation of the element encodings. Every element
// starts with a tag byte, and tags are ordered the same way values are, so
// bytes.Compare on two keys agrees with CompareTuple.
//
//   - number: tag, 8 bytes of IEEE-754 big-endian with the sign bit flipped
//     (all bits flipped for negative numbers)
//   - string: tag, bytes with 0x00 escaped as 0x00 0x01, then 0x00 0x00
//   - array: tag, elements, tagEnd
//   - object: tag, (tagEntry, key string body, value)* sorted by key, tagEnd
//
// Min and Max encode as a single byte lower / higher than every other tag,
// which is what makes prefix+[Max] an upper bound for the whole prefix.
const (
	tagMin    byte = 0x00
	tagEnd    byte = 0x01
	tagEntry  byte = 0x02
	tagNull   byte = 0x03
	tagFalse  byte = 0x04
	tagTrue   byte = 0x05
	tagNumber byte = 0x06
	tagString byte = 0x07
	tagArray  byte = 0x08
	tagObject byte = 0x09
	tagMax    byte = 0xFF
)

// encodeKey encodes a normalized tuple. The result is never nil, even for
// an empty tuple.
func encodeKey(tup Tuple) []byte {
	return appendKey(make([]byte, 0, 32), tup)
}

func appendKey(buf []byte, tup Tuple) []byte {
	for _, el := range tup {
		buf = appendKeyValue(buf, el)
	}
	return buf
}

func appendKeyValue(buf []byte, v Value) []byte {
	switch v := v.(type) {
	case nil:
		return appendUint8(buf, tagNull)
	case bool:
		if v {
			return appendUint8(buf, tagTrue)
		}
		return appendUint8(buf, tagFalse)
	case float64:
		buf = appendUint8(buf, tagNumber)
		return appendUint64(buf, orderedFloatBits(v))
	case string:
		buf = appendUint8(buf, tagString)
		return appendKeyString(buf, v)
	case []any:
		buf = appendUint8(buf, tagArray)
		for _, el := range v {
			buf = appendKeyValue(buf, el)
		}
		return appendUint8(buf, tagEnd)
	case map[string]any:
		buf = appendUint8(buf, tagObject)
		for _, k := range sortedKeys(v) {
			buf = appendUint8(buf, tagEntry)
			buf = appendKeyString(buf, k)
			buf = appendKeyValue(buf, v[k])
		}
		return appendUint8(buf, tagEnd)
	case Sentinel:
		if v == Min {
			return appendUint8(buf, tagMin)
		}
		return appendUint8(buf, tagMax)
	default:
		panic("encodeKey: non-normalized value")
	}
}

func appendKeyString(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			buf = append(buf, 0x00, 0x01)
		} else {
			buf = append(buf, s[i])
		}
	}
	return append(buf, 0x00, 0x00)
}

func orderedFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func floatFromOrderedBits(bits uint64) float64 {
	if bits&(1<<63) != 0 {
		return math.Float64frombits(bits &^ (1 << 63))
	}
	return math.Float64frombits(^bits)
}

// decodeKey parses a stored key. Sentinels are rejected since they are
// never part of stored keys.
func decodeKey(raw []byte) (Tuple, error) {
	var tup Tuple
	d := keyDecoder{raw: raw}
	for d.off < len(raw) {
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		tup = append(tup, v)
	}
	if tup == nil {
		tup = Tuple{}
	}
	return tup, nil
}

type keyDecoder struct {
	raw []byte
	off int
}

func (d *keyDecoder) fail(msg string) error {
	return dataErrf(d.raw, d.off, nil, "invalid key: %s", msg)
}

func (d *keyDecoder) tag() (byte, error) {
	if d.off >= len(d.raw) {
		return 0, d.fail("unexpected end")
	}
	t := d.raw[d.off]
	d.off++
	return t, nil
}

func (d *keyDecoder) value() (Value, error) {
	t, err := d.tag()
	if err != nil {
		return nil, err
	}
	return d.valueAfterTag(t)
}

func (d *keyDecoder) valueAfterTag(t byte) (Value, error) {
	switch t {
	case tagNull:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagNumber:
		if d.off+8 > len(d.raw) {
			return nil, d.fail("truncated number")
		}
		bits := binary.BigEndian.Uint64(d.raw[d.off:])
		d.off += 8
		return floatFromOrderedBits(bits), nil
	case tagString:
		return d.str()
	case tagArray:
		arr := []any{}
		for {
			t, err := d.tag()
			if err != nil {
				return nil, err
			}
			if t == tagEnd {
				return arr, nil
			}
			v, err := d.valueAfterTag(t)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
	case tagObject:
		obj := map[string]any{}
		for {
			t, err := d.tag()
			if err != nil {
				return nil, err
			}
			if t == tagEnd {
				return obj, nil
			}
			if t != tagEntry {
				return nil, d.fail("expected object entry")
			}
			k, err := d.str()
			if err != nil {
				return nil, err
			}
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
	case tagMin, tagMax:
		return nil, d.fail("sentinel in stored key")
	default:
		return nil, d.fail("unknown tag")
	}
}

func (d *keyDecoder) str() (string, error) {
	var out []byte
	for {
		if d.off >= len(d.raw) {
			return "", d.fail("unterminated string")
		}
		b := d.raw[d.off]
		d.off++
		if b != 0 {
			out = append(out, b)
			continue
		}
		if d.off >= len(d.raw) {
			return "", d.fail("unterminated string")
		}
		esc := d.raw[d.off]
		d.off++
		switch esc {
		case 0x00:
			return string(out), nil
		case 0x01:
			out = append(out, 0)
		default:
			return "", d.fail("bad string escape")
		}
	}
}

// keySuccessor returns the smallest key greater than k.
func keySuccessor(k []byte) []byte {
	out := slices.Clip(slices.Clone(k))
	return append(out, 0x00)
}
