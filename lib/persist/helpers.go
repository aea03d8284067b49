package persist

import (
	"github.com/ValentinKolb/dMirror/lib/record"
)

// --------------------------------------------------------------------------
// Helper functions shared by backend implementations
// --------------------------------------------------------------------------

// AssignKey returns the record to store together with its key and the new state of
// the key generator.
//
// Records without a key get the next generator value if the collection uses auto
// increment, otherwise ErrInvalidOperation is returned. Records with an explicit
// positive integer key move the generator forward, so generated keys never collide
// with explicit ones.
func AssignKey(r record.Record, cfg CollectionConfig, seq uint64) (record.Record, any, uint64, error) {
	key, ok := r.Get(cfg.KeyField)
	if !ok || key == nil {
		if !cfg.AutoIncrement {
			return r, nil, seq, Errorf(RetCInvalidOperation, "record has no key field %q", cfg.KeyField)
		}
		seq++
		key = int64(seq)
		r = r.Clone()
		r.Set(cfg.KeyField, key)
		return r, key, seq, nil
	}

	if k, ok := record.AsInt64(key); ok && k > 0 && uint64(k) > seq {
		seq = uint64(k)
	}
	return r, key, seq, nil
}

// UniqueConflict returns the first unique field on which both records hold equal values.
func UniqueConflict(r, other record.Record, unique []string) (string, bool) {
	for _, field := range unique {
		v, ok := r.Get(field)
		if !ok {
			continue
		}
		if ov, ok := other.Get(field); ok && record.Equal(v, ov) {
			return field, true
		}
	}
	return "", false
}

// ValidateConfig checks a collection schema before it is created.
func ValidateConfig(name string, cfg CollectionConfig) error {
	if name == "" {
		return Errorf(RetCInvalidOperation, "collection name must not be empty")
	}
	if cfg.KeyField == "" {
		return Errorf(RetCInvalidOperation, "collection %q: key field must not be empty", name)
	}
	return nil
}
