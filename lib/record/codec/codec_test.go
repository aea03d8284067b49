package codec

import (
	"testing"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// testCodecs is a map of codec name to factory function
var testCodecs = map[string]func() ICodec{
	"JSON":   NewJSONCodec,
	"GOB":    NewGOBCodec,
	"Binary": NewBinaryCodec,
}

// testRecords creates records covering every supported value type
func testRecords() []record.Record {
	return []record.Record{
		// Empty record
		{},

		// Flat record
		record.New("id", 1, "name", "alice", "score", 9.5, "active", true, "missing", nil),

		// Nested values
		record.New(
			"id", "k-1",
			"address", record.New("city", "Berlin", "zip", 10115),
			"tags", []any{"a", 2, record.New("deep", []any{false})},
		),
	}
}

// TestCodecRoundTrip tests that records survive encode and decode with field order intact
func TestCodecRoundTrip(t *testing.T) {
	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			c := factory()

			for i, r := range testRecords() {
				data, err := c.Encode(r)
				if err != nil {
					t.Errorf("Failed to encode record %d: %v", i, err)
					continue
				}

				decoded, err := c.Decode(data)
				if err != nil {
					t.Errorf("Failed to decode record %d: %v", i, err)
					continue
				}

				if !decoded.Equal(r) {
					t.Errorf("Record %d mismatch: expected %v, got %v", i, r, decoded)
				}

				names, decodedNames := r.Names(), decoded.Names()
				for j := range names {
					if names[j] != decodedNames[j] {
						t.Errorf("Record %d: field order changed at %d: %s != %s", i, j, names[j], decodedNames[j])
					}
				}
			}
		})
	}
}

// TestCodecRejectsUnsupportedValues makes sure foreign types fail loudly instead of being dropped
func TestCodecRejectsUnsupportedValues(t *testing.T) {
	r := record.New("ch", make(chan int))

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			if _, err := factory().Encode(r); err == nil {
				t.Errorf("Expected error when encoding a channel value")
			}
		})
	}
}

// TestBinaryCodecCorruptData tests that truncated input is reported
func TestBinaryCodecCorruptData(t *testing.T) {
	c := NewBinaryCodec()
	data, err := c.Encode(record.New("name", "alice"))
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	for cut := 0; cut < len(data); cut++ {
		if _, err := c.Decode(data[:cut]); err == nil {
			t.Errorf("Expected error for data truncated to %d bytes", cut)
		}
	}

	if _, err := c.Decode(append(data, 0)); err == nil {
		t.Error("Expected error for trailing data")
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%s) failed: %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("Expected codec %s, got %s", name, c.Name())
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Error("Expected error for unknown codec")
	}
}
