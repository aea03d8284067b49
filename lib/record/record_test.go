package record

import (
	"encoding/json"
	"testing"
)

func TestSetKeepsPosition(t *testing.T) {
	r := New("a", 1, "b", 2, "c", 3)
	r.Set("b", "two")
	r.Set("d", 4)

	names := r.Names()
	expected := []string{"a", "b", "c", "d"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %d fields, got %d", len(expected), len(names))
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Expected field %d to be %s, got %s", i, expected[i], names[i])
		}
	}

	if v, _ := r.Get("b"); v != "two" {
		t.Errorf("Expected b to be overwritten, got %v", v)
	}
}

func TestNormalizeNumbers(t *testing.T) {
	r := New("i", 1, "u", uint16(7), "f", float32(1.5))

	if v, _ := r.Get("i"); v != int64(1) {
		t.Errorf("Expected int to normalize to int64, got %T", v)
	}
	if v, _ := r.Get("u"); v != int64(7) {
		t.Errorf("Expected uint16 to normalize to int64, got %T", v)
	}
	if v, _ := r.Get("f"); v != float64(1.5) {
		t.Errorf("Expected float32 to normalize to float64, got %T", v)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int-float", 1, 1.0, true},
		{"int-int64", 42, int64(42), true},
		{"different numbers", 1, 2, false},
		{"string-number", "1", 1, false},
		{"strings", "x", "x", true},
		{"nil", nil, nil, true},
		{"nil-zero", nil, 0, false},
		{"bool", true, true, true},
		{"false-zero", false, 0, false},
		{"records ignore order", New("a", 1, "b", 2), New("b", 2, "a", 1), true},
		{"records differ", New("a", 1), New("a", 2), false},
		{"lists", []int{1, 2}, []any{1, 2.0}, true},
		{"lists differ in length", []any{1}, []any{1, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	nested := New("x", 1)
	r := New("nested", nested, "list", []any{1, 2})

	c := r.Clone()
	inner, _ := c.Get("nested")
	innerRec := inner.(Record)
	innerRec.Set("x", 99)
	c.Set("nested", innerRec)

	orig, _ := r.Get("nested")
	if v, _ := orig.(Record).Get("x"); v != int64(1) {
		t.Errorf("Expected original nested record to be unchanged, got %v", v)
	}
}

func TestJSONPreservesOrder(t *testing.T) {
	input := `{"z":1,"a":"text","m":{"k":2.5,"b":[1,"x",null]},"t":true}`

	r, err := ParseJSON([]byte(input))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	names := r.Names()
	if names[0] != "z" || names[1] != "a" || names[2] != "m" || names[3] != "t" {
		t.Errorf("Expected document order, got %v", names)
	}
	if v, _ := r.Get("z"); v != int64(1) {
		t.Errorf("Expected integral number to decode as int64, got %T", v)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != input {
		t.Errorf("Expected %s, got %s", input, out)
	}
}

func TestParseJSONRejectsNonObjects(t *testing.T) {
	if _, err := ParseJSON([]byte(`[1,2]`)); err == nil {
		t.Error("Expected error for JSON array")
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue([]byte(`12`))
	if err != nil || v != int64(12) {
		t.Errorf("Expected int64(12), got %v (%v)", v, err)
	}
	if _, err := ParseValue([]byte(`hello`)); err == nil {
		t.Error("Expected error for bare word")
	}
}

func TestRemove(t *testing.T) {
	r := New("a", 1, "b", 2)
	if !r.Remove("a") {
		t.Error("Expected Remove to report existing field")
	}
	if r.Remove("a") {
		t.Error("Expected second Remove to report missing field")
	}
	if r.Len() != 1 || !r.Has("b") {
		t.Errorf("Unexpected record after remove: %v", r)
	}
}
