package mirror

import (
	"github.com/ValentinKolb/dMirror/lib/record"
)

// Result is a derived, read-only view holding the records produced by Select or a join.
// It is not persisted and not updated when its source changes.
//
// Result has no mutating methods, use Writable to get from a View to a Storage.
type Result struct {
	name    string
	mirror  *Mirror // used to resolve join partners, may be nil
	records []record.Record
}

func newResult(name string, m *Mirror, records []record.Record) *Result {
	if records == nil {
		records = make([]record.Record, 0)
	}
	return &Result{name: name, mirror: m, records: records}
}

// Name returns the name of the source the result was derived from
func (r *Result) Name() string { return r.name }

// Derived always reports true
func (r *Result) Derived() bool { return true }

// FetchAll returns a copy of all records
func (r *Result) FetchAll() []record.Record { return cloneAll(r.records) }

// Count returns the number of records
func (r *Result) Count() int { return len(r.records) }

func (r *Result) Match(f Filter) ([]record.Record, bool) {
	return match(r.records, f)
}

func (r *Result) Select(fields ...string) *Result {
	return project(r, fields)
}

func (r *Result) InnerJoin(other string, on JoinOn) (*Result, error) {
	return innerJoin(r, r.mirror, other, on)
}

func (r *Result) snapshot() []record.Record { return r.records }

// derived records are never prefixed again
func (r *Result) prefix() string { return "" }
