package tupledb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON

	defaultValueEncoding = MsgPack
)

func (enc encodingMethod) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

// EncodeValue appends the encoding of a normalized value to buf.
func (enc encodingMethod) EncodeValue(buf []byte, v Value) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		e.SetSortMapKeys(true)
		err := e.Encode(v)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T to JSON: %w", v, err)
		}
		return appendRaw(buf, raw), nil
	default:
		panic("unsupported encoding")
	}
}

// DecodeValue decodes a stored value back into its normalized form.
func (enc encodingMethod) DecodeValue(buf []byte) (Value, error) {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		d := msgpack.GetDecoder()
		d.Reset(&r)
		v, err := d.DecodeInterface()
		msgpack.PutDecoder(d)
		if err != nil {
			return nil, dataErrf(buf, 0, err, "failed to decode msgpack value")
		}
		return canonicalDecoded(v), nil
	case JSON:
		v, err := parseJSONValue(buf)
		if err != nil {
			return nil, dataErrf(buf, 0, err, "failed to decode JSON value")
		}
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, dataErrf(buf, 0, err, "invalid JSON value")
		}
		return nv, nil
	default:
		panic("unsupported encoding")
	}
}

// canonicalDecoded maps what msgpack hands back onto the normalized value
// types. Maps come back as map[string]any or map[any]any depending on the
// keys, and small numbers may come back as integers.
func canonicalDecoded(v any) Value {
	switch v := v.(type) {
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case []any:
		for i, el := range v {
			v[i] = canonicalDecoded(el)
		}
		return v
	case map[string]any:
		for k, el := range v {
			v[k] = canonicalDecoded(el)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			out[fmt.Sprint(k)] = canonicalDecoded(el)
		}
		return out
	default:
		return v
	}
}

func encodeValue(v Value) ([]byte, error) {
	return defaultValueEncoding.EncodeValue(nil, v)
}

func decodeValue(raw []byte) (Value, error) {
	return defaultValueEncoding.DecodeValue(raw)
}
