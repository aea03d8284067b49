package mirror

import (
	"fmt"
	"slices"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
)

// Change sets a single field of a record in Update
type Change struct {
	Field string
	Value any
}

// Storage is the writable view of a mirrored collection. Reads and writes operate on
// the in-memory copy, writes are mirrored to the backend in the background.
//
// A Storage stays bound to its collection name: after the mirror was closed and
// opened again it sees the new in-memory copy. On a closed mirror reads return
// nothing and writes fail with ErrNotOpen.
//
// Thread-safety: all methods are safe for concurrent use.
type Storage struct {
	mirror *Mirror
	name   string
}

// Name returns the collection name
func (s *Storage) Name() string { return s.name }

// Derived reports false, a Storage is backed by a persisted collection
func (s *Storage) Derived() bool { return false }

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// read runs fn on the collection under the read lock.
// fn is not called if the mirror is closed.
func (s *Storage) read(fn func(c *collection)) {
	s.mirror.mu.RLock()
	defer s.mirror.mu.RUnlock()
	if c, err := s.mirror.lookup(s.name); err == nil {
		fn(c)
	}
}

// write runs fn on the collection under the write lock
func (s *Storage) write(fn func(c *collection, w *writer) error) error {
	s.mirror.mu.Lock()
	defer s.mirror.mu.Unlock()
	c, err := s.mirror.lookup(s.name)
	if err != nil {
		return err
	}
	return fn(c, s.mirror.writer)
}

// Get returns the first record whose key equals key.
func (s *Storage) Get(key any) (record.Record, bool) {
	var (
		r  record.Record
		ok bool
	)
	s.read(func(c *collection) {
		var i int
		if i, ok = c.index(key); ok {
			r = c.records[i].Clone()
		}
	})
	return r, ok
}

// GetIndex returns the position of the record with the given key.
func (s *Storage) GetIndex(key any) (int, bool) {
	var (
		i  int
		ok bool
	)
	s.read(func(c *collection) {
		i, ok = c.index(key)
	})
	return i, ok
}

// FetchAll returns a copy of all records in insertion order.
func (s *Storage) FetchAll() []record.Record {
	var out []record.Record
	s.read(func(c *collection) {
		out = cloneAll(c.records)
	})
	if out == nil {
		out = make([]record.Record, 0)
	}
	return out
}

// Count returns the number of records.
func (s *Storage) Count() int {
	n := 0
	s.read(func(c *collection) {
		n = len(c.records)
	})
	return n
}

// Tx starts a backend transaction on the collection. Reads in the transaction see
// the persisted state, which may lag behind the in-memory copy.
func (s *Storage) Tx(mode persist.Mode) (persist.Tx, error) {
	s.mirror.mu.RLock()
	defer s.mirror.mu.RUnlock()
	if _, err := s.mirror.lookup(s.name); err != nil {
		return nil, err
	}
	return s.mirror.conn.Transaction([]string{s.name}, mode)
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Insert appends a record and mirrors it to the backend.
//
// The record must carry a key unless the collection uses auto increment, in which
// case the next key is written into the key field. Duplicate keys and duplicate
// values of unique fields are rejected. The stored record is returned.
func (s *Storage) Insert(r record.Record) (record.Record, error) {
	var out record.Record
	err := s.write(func(c *collection, w *writer) error {
		r = r.Clone()
		key, ok := r.Get(c.cfg.KeyField)
		if !ok || key == nil {
			if !c.cfg.AutoIncrement {
				return fmt.Errorf("%w: field %q missing in collection %q", ErrMissingKey, c.cfg.KeyField, s.name)
			}
			c.seq++
			key = int64(c.seq)
			r.Set(c.cfg.KeyField, key)
		}
		if err := checkKey(key); err != nil {
			return err
		}
		if _, dup := c.index(key); dup {
			return fmt.Errorf("%w: %v in collection %q", ErrDuplicateKey, key, s.name)
		}
		if err := c.checkUnique(r, -1); err != nil {
			return err
		}
		c.bump(key)

		c.records = append(c.records, r)
		w.enqueue(writeOp{kind: opAdd, collection: s.name, record: r.Clone(), key: key})
		out = r.Clone()
		return nil
	})
	return out, err
}

// Delete removes the record with the given key and returns it.
func (s *Storage) Delete(key any) (record.Record, bool) {
	var (
		removed record.Record
		ok      bool
	)
	_ = s.write(func(c *collection, w *writer) error {
		var i int
		if i, ok = c.index(key); !ok {
			return nil
		}
		removed = c.records[i].Clone()
		c.records = append(c.records[:i:i], c.records[i+1:]...)

		stored, _ := removed.Get(c.cfg.KeyField)
		w.enqueue(writeOp{kind: opDelete, collection: s.name, key: stored})
		return nil
	})
	return removed, ok
}

// Update applies the changes in order to the record with the given key and returns
// the updated record. Later changes of the same field win. The record keeps its
// position. Changing the key field moves the record to the new key in the backend.
func (s *Storage) Update(key any, changes ...Change) (record.Record, error) {
	var out record.Record
	err := s.write(func(c *collection, w *writer) error {
		i, ok := c.index(key)
		if !ok {
			return fmt.Errorf("%w: key %v in collection %q", ErrNotFound, key, s.name)
		}

		r := c.records[i].Clone()
		oldKey, _ := r.Get(c.cfg.KeyField)
		for _, ch := range changes {
			r.Set(ch.Field, ch.Value)
		}

		newKey, _ := r.Get(c.cfg.KeyField)
		moved := !record.Equal(oldKey, newKey)
		if moved {
			if newKey == nil {
				return fmt.Errorf("%w: update removes key of %v in collection %q", ErrMissingKey, oldKey, s.name)
			}
			if err := checkKey(newKey); err != nil {
				return err
			}
			if _, dup := c.index(newKey); dup {
				return fmt.Errorf("%w: %v in collection %q", ErrDuplicateKey, newKey, s.name)
			}
		}
		if err := c.checkUnique(r, i); err != nil {
			return err
		}

		// replace the slice, snapshots handed to query operators keep the old one
		records := slices.Clone(c.records)
		records[i] = r
		c.records = records
		if moved {
			c.bump(newKey)
			w.enqueue(writeOp{kind: opDelete, collection: s.name, key: oldKey})
		}
		w.enqueue(writeOp{kind: opPut, collection: s.name, record: r.Clone(), key: newKey})
		out = r.Clone()
		return nil
	})
	return out, err
}

// Truncate removes all records.
func (s *Storage) Truncate() error {
	return s.write(func(c *collection, w *writer) error {
		c.records = make([]record.Record, 0)
		w.enqueue(writeOp{kind: opClear, collection: s.name})
		return nil
	})
}

// --------------------------------------------------------------------------
// Queries (docu see View)
// --------------------------------------------------------------------------

func (s *Storage) Match(f Filter) ([]record.Record, bool) {
	return match(s.snapshot(), f)
}

func (s *Storage) Select(fields ...string) *Result {
	return project(s, fields)
}

func (s *Storage) InnerJoin(other string, on JoinOn) (*Result, error) {
	return innerJoin(s, s.mirror, other, on)
}

// snapshot returns the records for query operators without copying them.
// Stored records and the slice holding them are never modified in place.
func (s *Storage) snapshot() []record.Record {
	var out []record.Record
	s.read(func(c *collection) {
		out = c.records[:len(c.records):len(c.records)]
	})
	return out
}

// prefix returns the field name prefix of records of this view
func (s *Storage) prefix() string { return s.name + "." }

// --------------------------------------------------------------------------
// collection helpers (the registry lock must be held)
// --------------------------------------------------------------------------

// index scans the records for the key
func (c *collection) index(key any) (int, bool) {
	for i, r := range c.records {
		if v, ok := r.Get(c.cfg.KeyField); ok && record.Equal(v, key) {
			return i, true
		}
	}
	return -1, false
}

// checkUnique compares r with all records except the one at position skip
func (c *collection) checkUnique(r record.Record, skip int) error {
	if len(c.cfg.Unique) == 0 {
		return nil
	}
	for i, other := range c.records {
		if i == skip {
			continue
		}
		if field, conflict := persist.UniqueConflict(r, other, c.cfg.Unique); conflict {
			v, _ := r.Get(field)
			return fmt.Errorf("%w: field %q value %v", ErrConstraint, field, v)
		}
	}
	return nil
}

// bump moves the auto increment state past explicit integer keys
func (c *collection) bump(key any) {
	if k, ok := record.AsInt64(key); ok && k > 0 && uint64(k) > c.seq {
		c.seq = uint64(k)
	}
}

// checkKey rejects keys the backend can't store
func checkKey(key any) error {
	if _, err := persist.EncodeKey(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

func cloneAll(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
