package persist

import (
	"encoding/binary"
	"math"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// Key tags define the natural order of keys: all numbers sort before all strings.
const (
	keyTagNumber byte = 0x10
	keyTagString byte = 0x20
)

// MaxIntKey is the largest integer magnitude a key may have
const MaxIntKey = 1 << 53

// EncodeKey encodes a record key into a byte slice whose bytewise order is the natural
// key order. Numbers are ordered numerically, strings bytewise.
// Only numbers and strings are valid keys.
//
// Numbers are encoded as float64, integer keys beyond ±2^53 are rejected because
// neighbouring integers would share an encoding.
func EncodeKey(key any) ([]byte, error) {
	switch t := record.Normalize(key).(type) {
	case int64:
		if t > MaxIntKey || t < -MaxIntKey {
			return nil, Errorf(RetCInvalidOperation, "integer key %d out of range (max ±%d)", t, int64(MaxIntKey))
		}
		return encodeNumber(float64(t)), nil
	case float64:
		if math.IsNaN(t) {
			return nil, Errorf(RetCInvalidOperation, "NaN is not a valid key")
		}
		return encodeNumber(t), nil
	case string:
		out := make([]byte, 1+len(t))
		out[0] = keyTagString
		copy(out[1:], t)
		return out, nil
	default:
		return nil, Errorf(RetCInvalidOperation, "invalid key type %T (must be number or string)", key)
	}
}

// DecodeKey reverses EncodeKey. Integral numbers are returned as int64.
func DecodeKey(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, Errorf(RetCInternalError, "empty key")
	}
	switch b[0] {
	case keyTagNumber:
		if len(b) != 9 {
			return nil, Errorf(RetCInternalError, "invalid number key length %d", len(b))
		}
		bits := binary.BigEndian.Uint64(b[1:])
		// undo the order preserving transformation
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return record.Normalize(numberValue(math.Float64frombits(bits))), nil
	case keyTagString:
		return string(b[1:]), nil
	default:
		return nil, Errorf(RetCInternalError, "unknown key tag %d", b[0])
	}
}

// KeyOf returns the key of a record for the given collection schema.
func KeyOf(r record.Record, cfg CollectionConfig) (any, bool) {
	return r.Get(cfg.KeyField)
}

// encodeNumber maps a float64 onto bytes that sort like the numbers:
// positive numbers get the sign bit set, negative numbers are inverted.
func encodeNumber(f float64) []byte {
	if f == 0 {
		f = 0 // normalize -0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	out := make([]byte, 9)
	out[0] = keyTagNumber
	binary.BigEndian.PutUint64(out[1:], bits)
	return out
}

func numberValue(f float64) any {
	if i, ok := record.AsInt64(f); ok {
		return i
	}
	return f
}
