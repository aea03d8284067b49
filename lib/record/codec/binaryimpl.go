package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// NewBinaryCodec creates a new codec using a custom binary format
// optimized for speed and small payloads
func NewBinaryCodec() ICodec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements ICodec using a custom binary format.
//
// Layout (all integers big endian):
//
//	record := version(1) fieldCount(4) field*
//	field  := nameLen(4) name value
//	value  := tag(1) payload
//
// The payload depends on the tag: nothing for nil/false/true, 8 bytes for int
// and float, length prefixed bytes for strings, fieldCount(4) field* for nested
// records and itemCount(4) value* for lists.
type binaryCodecImpl struct {
}

const binaryVersion byte = 1

// Type tags of the binary format
const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagRecord
	tagList
)

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (b binaryCodecImpl) Name() string {
	return "binary"
}

func (b binaryCodecImpl) Encode(r record.Record) ([]byte, error) {
	// Calculate total size needed
	size, err := b.recordSize(r)
	if err != nil {
		return nil, err
	}
	result := make([]byte, 1+size)

	// Write format version
	result[0] = binaryVersion

	pos := b.writeRecord(result, 1, r)
	if pos != len(result) {
		return nil, fmt.Errorf("binary codec: size mismatch (wrote %d of %d bytes)", pos, len(result))
	}
	return result, nil
}

func (b binaryCodecImpl) Decode(data []byte) (record.Record, error) {
	// Check minimum size (version + field count)
	if len(data) < 5 {
		return record.Record{}, fmt.Errorf("data too short for record header")
	}
	if data[0] != binaryVersion {
		return record.Record{}, fmt.Errorf("unsupported binary codec version: %d (expected %d)", data[0], binaryVersion)
	}

	r, pos, err := b.readRecord(data, 1)
	if err != nil {
		return record.Record{}, err
	}
	if pos != len(data) {
		return record.Record{}, fmt.Errorf("trailing data after record (%d bytes)", len(data)-pos)
	}
	return r, nil
}

// --------------------------------------------------------------------------
// Size calculation
// --------------------------------------------------------------------------

// recordSize calculates the size of the record without version byte
func (b binaryCodecImpl) recordSize(r record.Record) (int, error) {
	size := 4 // field count
	var err error
	r.Range(func(name string, value any) bool {
		var vs int
		if vs, err = b.valueSize(value); err != nil {
			err = fmt.Errorf("field %q: %w", name, err)
			return false
		}
		size += 4 + len(name) + vs
		return true
	})
	return size, err
}

func (b binaryCodecImpl) valueSize(v any) (int, error) {
	switch t := v.(type) {
	case nil, bool:
		return 1, nil
	case int64, float64:
		return 1 + 8, nil
	case string:
		return 1 + 4 + len(t), nil
	case record.Record:
		size, err := b.recordSize(t)
		return 1 + size, err
	case []any:
		size := 1 + 4
		for i := range t {
			vs, err := b.valueSize(t[i])
			if err != nil {
				return 0, err
			}
			size += vs
		}
		return size, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

// --------------------------------------------------------------------------
// Writing (the buffer is pre-sized, no bounds checks needed)
// --------------------------------------------------------------------------

func (b binaryCodecImpl) writeRecord(buf []byte, pos int, r record.Record) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(r.Len()))
	pos += 4

	r.Range(func(name string, value any) bool {
		binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(name)))
		pos += 4
		copy(buf[pos:pos+len(name)], name)
		pos += len(name)
		pos = b.writeValue(buf, pos, value)
		return true
	})
	return pos
}

func (b binaryCodecImpl) writeValue(buf []byte, pos int, v any) int {
	switch t := v.(type) {
	case nil:
		buf[pos] = tagNil
		return pos + 1
	case bool:
		if t {
			buf[pos] = tagTrue
		} else {
			buf[pos] = tagFalse
		}
		return pos + 1
	case int64:
		buf[pos] = tagInt
		binary.BigEndian.PutUint64(buf[pos+1:pos+9], uint64(t))
		return pos + 9
	case float64:
		buf[pos] = tagFloat
		binary.BigEndian.PutUint64(buf[pos+1:pos+9], math.Float64bits(t))
		return pos + 9
	case string:
		buf[pos] = tagString
		binary.BigEndian.PutUint32(buf[pos+1:pos+5], uint32(len(t)))
		pos += 5
		copy(buf[pos:pos+len(t)], t)
		return pos + len(t)
	case record.Record:
		buf[pos] = tagRecord
		return b.writeRecord(buf, pos+1, t)
	case []any:
		buf[pos] = tagList
		binary.BigEndian.PutUint32(buf[pos+1:pos+5], uint32(len(t)))
		pos += 5
		for i := range t {
			pos = b.writeValue(buf, pos, t[i])
		}
		return pos
	}
	// unreachable, valueSize rejected the type already
	return pos
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

func (b binaryCodecImpl) readRecord(data []byte, pos int) (record.Record, int, error) {
	var r record.Record

	if pos+4 > len(data) {
		return r, pos, fmt.Errorf("data too short for field count")
	}
	count := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return r, pos, fmt.Errorf("data too short for field name length")
		}
		nameLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if pos+nameLen > len(data) {
			return r, pos, fmt.Errorf("data too short for field name")
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen

		var (
			value any
			err   error
		)
		value, pos, err = b.readValue(data, pos)
		if err != nil {
			return r, pos, fmt.Errorf("field %q: %w", name, err)
		}
		r.Set(name, value)
	}
	return r, pos, nil
}

func (b binaryCodecImpl) readValue(data []byte, pos int) (any, int, error) {
	if pos+1 > len(data) {
		return nil, pos, fmt.Errorf("data too short for value tag")
	}
	tag := data[pos]
	pos++

	switch tag {
	case tagNil:
		return nil, pos, nil
	case tagFalse:
		return false, pos, nil
	case tagTrue:
		return true, pos, nil
	case tagInt, tagFloat:
		if pos+8 > len(data) {
			return nil, pos, fmt.Errorf("data too short for number")
		}
		bits := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		if tag == tagInt {
			return int64(bits), pos, nil
		}
		return math.Float64frombits(bits), pos, nil
	case tagString:
		if pos+4 > len(data) {
			return nil, pos, fmt.Errorf("data too short for string length")
		}
		strLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+strLen > len(data) {
			return nil, pos, fmt.Errorf("data too short for string data")
		}
		return string(data[pos : pos+strLen]), pos + strLen, nil
	case tagRecord:
		return b.readRecord(data, pos)
	case tagList:
		if pos+4 > len(data) {
			return nil, pos, fmt.Errorf("data too short for list length")
		}
		count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		list := make([]any, 0, min(count, len(data)-pos))
		for i := 0; i < count; i++ {
			var (
				item any
				err  error
			)
			item, pos, err = b.readValue(data, pos)
			if err != nil {
				return nil, pos, err
			}
			list = append(list, item)
		}
		return list, pos, nil
	default:
		return nil, pos, fmt.Errorf("unknown value tag %d", tag)
	}
}
