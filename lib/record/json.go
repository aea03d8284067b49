package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalJSON encodes the record as a JSON object keeping the field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the record keeping the field order of
// the document. Nested objects become Records, arrays become []any and numbers
// become int64 when integral, float64 otherwise.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected JSON object, got %v", tok)
	}

	out, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*r = out
	return nil
}

// ParseJSON decodes a single JSON object into a Record.
func ParseJSON(data []byte) (Record, error) {
	var r Record
	err := r.UnmarshalJSON(data)
	return r, err
}

// ParseValue decodes any JSON value with the record conventions.
// It is used by the CLI to interpret command line arguments.
func ParseValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("record: trailing data after JSON value")
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Streaming decoder helper
// --------------------------------------------------------------------------

// decodeObject reads the fields of an object whose opening '{' was consumed.
func decodeObject(dec *json.Decoder) (Record, error) {
	var r Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		name, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("record: expected field name, got %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return Record{}, fmt.Errorf("field %q: %w", name, err)
		}
		r.Set(name, value)
	}
	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// decodeValue reads the next complete value from the decoder.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			list := make([]any, 0)
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			// consume closing ']'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("record: unexpected delimiter %v", t)
		}
	case json.Number:
		return Normalize(t), nil
	default:
		// string, bool, nil
		return t, nil
	}
}
