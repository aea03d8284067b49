package record

import (
	"encoding/json"
	"math"
	"reflect"
)

// Normalize converts a value into the canonical representation stored in records:
//   - all signed and unsigned integers become int64 (uint64 values above MaxInt64 become float64)
//   - float32 becomes float64, integral json.Number values become int64, others float64
//   - map[string]any becomes a Record (fields sorted by name)
//   - slices of any element type become []any with normalized elements
//
// nil, bool, string, int64, float64 and Record are kept as they are. Other types are
// stored unchanged, codecs may reject them later.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return v
	case Record:
		return t
	case *Record:
		if t == nil {
			return nil
		}
		return *t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return normalizeUint(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return normalizeUint(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		return FromMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Normalize(t[i])
		}
		return out
	}

	// generic slices ([]string, []int, ...)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// IsNumber reports whether v is a numeric value after normalization.
func IsNumber(v any) bool {
	_, ok := toFloat(Normalize(v))
	return ok
}

// Equal compares two values with value semantics.
// Numbers compare by value across integer and floating point representations,
// records compare field-wise (ignoring order) and lists element-wise.
// Values of different kinds are never equal.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)

	// fast path for integers to avoid precision loss above 2^53
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			return ai == bi
		}
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}

	switch at := a.(type) {
	case nil:
		return b == nil
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case Record:
		bt, ok := b.(Record)
		return ok && at.Equal(bt)
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// toFloat returns the float64 value of a normalized number.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// AsInt64 returns the value as an int64 if it is an integral number.
func AsInt64(v any) (int64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return t, true
	case float64:
		if t == math.Trunc(t) && t >= math.MinInt64 && t <= math.MaxInt64 {
			return int64(t), true
		}
	}
	return 0, false
}
