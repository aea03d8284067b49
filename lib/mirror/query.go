package mirror

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// Filter selects records by a single field.
// A string Value matches string fields containing it, any other Value matches
// fields equal to it (numbers compare by value).
type Filter struct {
	Field string
	Value any
}

// JoinOn is the condition of an inner join: left[On] == right[Equals]
type JoinOn struct {
	On     string
	Equals string
}

// View is the read and query surface shared by collections (*Storage) and derived
// results (*Result). Mutations are only available on *Storage.
type View interface {
	// Name returns the collection name, or a descriptive name for derived results
	Name() string
	// Derived reports whether the view is a derived result
	Derived() bool
	// FetchAll returns a copy of all records in order
	FetchAll() []record.Record
	// Count returns the number of records
	Count() int
	// Match returns the records passing the filter in order. ok is false if the view
	// holds no records at all, which is different from no record matching.
	Match(f Filter) (matches []record.Record, ok bool)
	// Select projects every record onto the given fields. Field names are prefixed with
	// "<collection>." unless the view is derived. Records keeping no field are dropped.
	Select(fields ...string) *Result
	// InnerJoin joins the view with the named collection of the same mirror
	InnerJoin(other string, on JoinOn) (*Result, error)
}

// source is implemented by the views the operators read from
type source interface {
	View
	snapshot() []record.Record
	prefix() string
}

var (
	_ source = (*Storage)(nil)
	_ source = (*Result)(nil)
)

// Writable returns the Storage behind a view.
// Derived results fail with ErrReadOnlyView.
func Writable(v View) (*Storage, error) {
	s, ok := v.(*Storage)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrReadOnlyView, v.Name())
	}
	return s, nil
}

// MustWritable is like Writable but panics for derived results.
func MustWritable(v View) *Storage {
	s, err := Writable(v)
	if err != nil {
		panic(err)
	}
	return s
}

// --------------------------------------------------------------------------
// Operators
// --------------------------------------------------------------------------

// match scans the records with the filter
func match(records []record.Record, f Filter) ([]record.Record, bool) {
	if len(records) == 0 {
		return nil, false
	}

	out := make([]record.Record, 0)
	text, textual := f.Value.(string)
	for _, r := range records {
		v, ok := r.Get(f.Field)
		if !ok {
			continue
		}
		if textual {
			if s, ok := v.(string); ok && strings.Contains(s, text) {
				out = append(out, r.Clone())
			}
			continue
		}
		if record.Equal(v, f.Value) {
			out = append(out, r.Clone())
		}
	}
	return out, true
}

// project builds the result of Select
func project(src source, fields []string) *Result {
	records := src.snapshot()
	prefix := src.prefix()

	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		var p record.Record
		for _, field := range fields {
			if v, ok := r.Get(field); ok {
				p.Set(prefix+field, v)
			}
		}
		if p.Len() == 0 {
			continue
		}
		// values of nested records and lists are shared with the source until here
		out = append(out, p.Clone())
	}
	return newResult(src.Name(), mirrorOf(src), out)
}

// innerJoin joins the left view with the named collection of m
func innerJoin(left source, m *Mirror, other string, on JoinOn) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: %q is not attached to a mirror", ErrUnknownCollection, other)
	}
	right, err := m.With(other)
	if err != nil {
		return nil, err
	}
	return Join(left, right, on), nil
}

// Join performs a nested loop inner join of two views. For every pair with
// left[on.On] == right[on.Equals] it emits all left fields followed by all right
// fields, each prefixed like Select does. The order is left records outer, right
// records inner. Records without the join field never match.
func Join(left, right View, on JoinOn) *Result {
	ls, rs := asSource(left), asSource(right)
	lrecs, rrecs := ls.snapshot(), rs.snapshot()
	lprefix, rprefix := ls.prefix(), rs.prefix()

	out := make([]record.Record, 0)
	for _, l := range lrecs {
		lv, ok := l.Get(on.On)
		if !ok {
			continue
		}
		for _, r := range rrecs {
			rv, ok := r.Get(on.Equals)
			if !ok || !record.Equal(lv, rv) {
				continue
			}

			var merged record.Record
			l.Range(func(name string, value any) bool {
				merged.Set(lprefix+name, value)
				return true
			})
			r.Range(func(name string, value any) bool {
				merged.Set(rprefix+name, value)
				return true
			})
			out = append(out, merged.Clone())
		}
	}

	m := mirrorOf(ls)
	if m == nil {
		m = mirrorOf(rs)
	}
	return newResult(ls.Name()+"+"+rs.Name(), m, out)
}

// asSource returns the operator view of v. Foreign View implementations are
// treated like derived results.
func asSource(v View) source {
	if s, ok := v.(source); ok {
		return s
	}
	return newResult(v.Name(), nil, v.FetchAll())
}

func mirrorOf(s source) *Mirror {
	switch t := s.(type) {
	case *Storage:
		return t.mirror
	case *Result:
		return t.mirror
	default:
		return nil
	}
}
