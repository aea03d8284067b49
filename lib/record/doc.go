// Package record provides the data model shared by all dMirror packages:
// a Record is an ordered mapping from field names to values.
//
// Key Components:
//
//   - Record: ordered fields with in-place overwrite semantics (Set keeps the
//     position of an existing field, new fields are appended). Records carry no
//     fixed shape, the only field with meaning is the key field declared per
//     collection by the mirror.
//
//   - Value normalization: every value stored in a record is normalized to one of
//     nil, bool, int64, float64, string, Record or []any. This keeps codecs small
//     and makes equality predictable.
//
//   - Equal: value equality used for key lookups, filters and join conditions.
//     Numbers compare by value (1 == 1.0), records compare field-wise.
//
//   - JSON: Records implement json.Marshaler and json.Unmarshaler and preserve
//     the field order of the document in both directions.
//
// The codec subpackage (github.com/ValentinKolb/dMirror/lib/record/codec)
// provides binary encodings for persistence backends.
package record
