package persist

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeKeyOrder(t *testing.T) {
	// keys in ascending natural order
	keys := []any{-10.5, -1, 0, 0.25, 1, 2, 1000, "", "a", "ab", "b"}

	var prev []byte
	for i, k := range keys {
		enc, err := EncodeKey(k)
		if err != nil {
			t.Fatalf("EncodeKey(%v) failed: %v", k, err)
		}
		if i > 0 && bytes.Compare(prev, enc) >= 0 {
			t.Errorf("Expected %v to sort after %v", k, keys[i-1])
		}
		prev = enc
	}
}

func TestDecodeKey(t *testing.T) {
	for _, k := range []any{int64(-3), int64(0), int64(42), 2.5, -0.75, "user:1"} {
		enc, err := EncodeKey(k)
		if err != nil {
			t.Fatalf("EncodeKey(%v) failed: %v", k, err)
		}
		dec, err := DecodeKey(enc)
		if err != nil {
			t.Fatalf("DecodeKey failed: %v", err)
		}
		if dec != k {
			t.Errorf("Expected %v (%T), got %v (%T)", k, k, dec, dec)
		}
	}
}

func TestEncodeKeyInvalid(t *testing.T) {
	for _, k := range []any{nil, true, []any{1}} {
		if _, err := EncodeKey(k); !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("Expected ErrInvalidOperation for %v, got %v", k, err)
		}
	}
}

func TestEncodeKeyIntegerRange(t *testing.T) {
	for _, k := range []any{int64(MaxIntKey), int64(-MaxIntKey)} {
		if _, err := EncodeKey(k); err != nil {
			t.Errorf("Expected %v to be a valid key, got %v", k, err)
		}
	}
	for _, k := range []any{int64(MaxIntKey + 1), int64(-MaxIntKey - 1)} {
		if _, err := EncodeKey(k); !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("Expected ErrInvalidOperation for %v, got %v", k, err)
		}
	}
}

func TestErrorIsByCode(t *testing.T) {
	err := Errorf(RetCConstraint, "key %d exists", 1)
	if !errors.Is(err, ErrConstraint) {
		t.Error("Expected constraint error to match ErrConstraint")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Expected constraint error not to match ErrNotFound")
	}
}
