package codec

import (
	"github.com/ValentinKolb/dMirror/lib/record"
)

// NewJSONCodec creates a new codec using json encoding
func NewJSONCodec() ICodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the ICodec interface using json encoding.
// Field order survives the round trip since record.Record marshals ordered objects.
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Name() string {
	return "json"
}

func (j jsonCodecImpl) Encode(r record.Record) ([]byte, error) {
	return r.MarshalJSON()
}

func (j jsonCodecImpl) Decode(b []byte) (record.Record, error) {
	return record.ParseJSON(b)
}
