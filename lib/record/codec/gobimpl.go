package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// NewGOBCodec creates a new codec using Go's binary gob format
func NewGOBCodec() ICodec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the ICodec interface using gob encoding.
// gob can not see the unexported fields of record.Record, so records are
// converted into the gobRecord wire type first.
type gobCodecImpl struct {
}

// gobField and gobRecord are the wire representation used by the gob codec
type gobField struct {
	Name  string
	Value interface{}
}

type gobRecord struct {
	Fields []gobField
}

type gobList struct {
	Items []interface{}
}

func init() {
	gob.Register(gobRecord{})
	gob.Register(gobList{})
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl) Name() string {
	return "gob"
}

func (g gobCodecImpl) Encode(r record.Record) ([]byte, error) {
	wire, err := toGobRecord(r)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl) Decode(b []byte) (record.Record, error) {
	var wire gobRecord
	dec := gob.NewDecoder(bytes.NewBuffer(b))
	if err := dec.Decode(&wire); err != nil {
		return record.Record{}, err
	}
	return fromGobRecord(wire), nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func toGobRecord(r record.Record) (gobRecord, error) {
	wire := gobRecord{Fields: make([]gobField, 0, r.Len())}
	var err error
	r.Range(func(name string, value any) bool {
		var v interface{}
		if v, err = toGobValue(value); err != nil {
			err = fmt.Errorf("field %q: %w", name, err)
			return false
		}
		wire.Fields = append(wire.Fields, gobField{Name: name, Value: v})
		return true
	})
	return wire, err
}

func toGobValue(v any) (interface{}, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return t, nil
	case record.Record:
		return toGobRecord(t)
	case []any:
		list := gobList{Items: make([]interface{}, len(t))}
		for i := range t {
			item, err := toGobValue(t[i])
			if err != nil {
				return nil, err
			}
			list.Items[i] = item
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromGobRecord(wire gobRecord) record.Record {
	var r record.Record
	for _, f := range wire.Fields {
		r.Set(f.Name, fromGobValue(f.Value))
	}
	return r
}

func fromGobValue(v interface{}) any {
	switch t := v.(type) {
	case gobRecord:
		return fromGobRecord(t)
	case gobList:
		out := make([]any, len(t.Items))
		for i := range t.Items {
			out[i] = fromGobValue(t.Items[i])
		}
		return out
	default:
		return t
	}
}
