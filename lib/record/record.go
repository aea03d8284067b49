package record

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Field and Record types
// --------------------------------------------------------------------------

// Field is a single named value of a record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered mapping from field name to value.
// The zero value is an empty record ready to use.
//
// Values are normalized on insertion (see Normalize), so a record only ever holds
// nil, bool, int64, float64, string, Record or []any values.
//
// Thread-safety: Records are not safe for concurrent modification.
type Record struct {
	fields []Field
}

// New builds a record from alternating name/value arguments:
//
//	r := record.New("id", 1, "name", "alice")
//
// New panics if the arguments are not name/value pairs with string names.
func New(pairs ...any) Record {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("record.New: odd number of arguments (%d)", len(pairs)))
	}
	r := Record{fields: make([]Field, 0, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("record.New: field name at position %d is %T, not string", i, pairs[i]))
		}
		r.Set(name, pairs[i+1])
	}
	return r
}

// FromFields builds a record from the given fields. Later fields overwrite earlier
// fields with the same name.
func FromFields(fields ...Field) Record {
	r := Record{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// FromMap builds a record from a map. Field order follows the sorted field names
// since Go maps carry no order.
func FromMap(m map[string]any) Record {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	r := Record{fields: make([]Field, 0, len(m))}
	for _, name := range names {
		r.Set(name, m[name])
	}
	return r
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Get returns the value of the named field and whether the field exists.
func (r Record) Get(name string) (any, bool) {
	if i := r.index(name); i >= 0 {
		return r.fields[i].Value, true
	}
	return nil, false
}

// Has reports whether the record contains the named field.
func (r Record) Has(name string) bool {
	return r.index(name) >= 0
}

// Set overwrites the named field in place or appends it if it does not exist yet.
func (r *Record) Set(name string, value any) {
	value = Normalize(value)
	if i := r.index(name); i >= 0 {
		r.fields[i].Value = value
		return
	}
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

// Remove deletes the named field. It reports whether the field existed.
func (r *Record) Remove(name string) bool {
	i := r.index(name)
	if i < 0 {
		return false
	}
	r.fields = append(r.fields[:i], r.fields[i+1:]...)
	return true
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the fields in order.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Range calls fn for every field in order until fn returns false.
func (r Record) Range(fn func(name string, value any) bool) {
	for _, f := range r.fields {
		if !fn(f.Name, f.Value) {
			return
		}
	}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{fields: make([]Field, len(r.fields))}
	for i, f := range r.fields {
		out.fields[i] = Field{Name: f.Name, Value: cloneValue(f.Value)}
	}
	return out
}

// Equal reports whether both records hold the same fields with equal values.
// Field order is ignored.
func (r Record) Equal(other Record) bool {
	if len(r.fields) != len(other.fields) {
		return false
	}
	for _, f := range r.fields {
		v, ok := other.Get(f.Name)
		if !ok || !Equal(f.Value, v) {
			return false
		}
	}
	return true
}

// String returns a compact representation for debugging and CLI output.
func (r Record) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range r.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(formatValue(f.Value))
	}
	sb.WriteString("}")
	return sb.String()
}

// index returns the position of the named field or -1.
func (r Record) index(name string) int {
	for i := range r.fields {
		if r.fields[i].Name == name {
			return i
		}
	}
	return -1
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	case Record:
		return t.String()
	case []any:
		parts := make([]string, len(t))
		for i := range t {
			parts[i] = formatValue(t[i])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}
