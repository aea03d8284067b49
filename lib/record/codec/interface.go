package codec

import (
	"fmt"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// ICodec is the interface for all record codecs
type ICodec interface {
	// Name returns the name the codec is registered under (json, gob, binary)
	Name() string
	// Encode encodes a record into a byte array
	// It returns the encoded byte array and an error if any
	Encode(r record.Record) ([]byte, error)
	// Decode decodes a byte array into a record
	// It returns the decoded record and an error if any
	Decode(b []byte) (record.Record, error)
}

// ByName returns the codec registered under the given name.
func ByName(name string) (ICodec, error) {
	switch name {
	case "json":
		return NewJSONCodec(), nil
	case "gob":
		return NewGOBCodec(), nil
	case "binary":
		return NewBinaryCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec %q (must be one of json, gob, binary)", name)
	}
}
