package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewBackend creates a new in-memory backend instance.
// Stores live as long as the backend value, nothing is written to disk.
func NewBackend() persist.Backend {
	return &backendImpl{
		stores: xsync.NewMapOf[string, *memStore](),
	}
}

type backendImpl struct {
	stores *xsync.MapOf[string, *memStore]
}

// memStore is a single named store.
//
// Committed collections are never modified: a read-write transaction works on clones of
// its collections and swaps them in on commit. Readers therefore only need the read lock
// to grab the current collection pointers.
type memStore struct {
	mu          sync.RWMutex // guards version and collections
	writer      sync.Mutex   // serializes read-write transactions and upgrades
	version     uint64
	collections map[string]*memCollection
	conns       atomic.Int64
}

// memCollection holds the records of one collection in key order.
type memCollection struct {
	cfg     persist.CollectionConfig
	keys    [][]byte                 // encoded keys in ascending order
	records map[string]record.Record // encoded key -> record
	seq     uint64                   // key generator state
}

// --------------------------------------------------------------------------
// Interface Methods (docu see persist/interface.go)
// --------------------------------------------------------------------------

func (b *backendImpl) Open(ctx context.Context, name string, version uint64, upgrade persist.UpgradeFunc) (persist.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "store name must not be empty")
	}
	if version == 0 {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "version must be greater than 0")
	}

	// get or create the store and register the connection atomically (see DeleteStore)
	s, _ := b.stores.Compute(name, func(old *memStore, loaded bool) (*memStore, bool) {
		if !loaded {
			old = &memStore{collections: make(map[string]*memCollection)}
		}
		old.conns.Add(1)
		return old, false
	})

	if err := s.upgrade(version, upgrade); err != nil {
		s.conns.Add(-1)
		return nil, err
	}

	return &connImpl{name: name, store: s}, nil
}

func (b *backendImpl) DeleteStore(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	b.stores.Compute(name, func(old *memStore, loaded bool) (*memStore, bool) {
		if !loaded {
			return old, true
		}
		if n := old.conns.Load(); n > 0 {
			err = persist.Errorf(persist.RetCBusy, "store %q has %d open connections", name, n)
			return old, false
		}
		return old, true
	})
	return err
}

// upgrade runs the upgrade function if the requested version is newer than the stored one
func (s *memStore) upgrade(version uint64, fn persist.UpgradeFunc) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	s.mu.RLock()
	current := s.version
	s.mu.RUnlock()

	if version < current {
		return persist.Errorf(persist.RetCVersion, "requested version %d is lower than stored version %d", version, current)
	}
	if version == current {
		return nil
	}

	// work on a copy of the collection map, discarded if the upgrade fails
	u := &upgraderImpl{
		oldVersion:  current,
		newVersion:  version,
		collections: s.snapshot(),
	}
	if fn != nil {
		if err := fn(u); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.collections = u.collections
	s.version = version
	s.mu.Unlock()
	return nil
}

// snapshot returns a shallow copy of the collection map
func (s *memStore) snapshot() map[string]*memCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*memCollection, len(s.collections))
	for name, c := range s.collections {
		out[name] = c
	}
	return out
}

// --------------------------------------------------------------------------
// Upgrader
// --------------------------------------------------------------------------

type upgraderImpl struct {
	oldVersion  uint64
	newVersion  uint64
	collections map[string]*memCollection
}

func (u *upgraderImpl) OldVersion() uint64 { return u.oldVersion }
func (u *upgraderImpl) NewVersion() uint64 { return u.newVersion }

func (u *upgraderImpl) HasCollection(name string) bool {
	_, ok := u.collections[name]
	return ok
}

func (u *upgraderImpl) CreateCollection(name string, cfg persist.CollectionConfig) error {
	if err := persist.ValidateConfig(name, cfg); err != nil {
		return err
	}
	if _, ok := u.collections[name]; ok {
		return persist.Errorf(persist.RetCConstraint, "collection %q already exists", name)
	}
	u.collections[name] = &memCollection{
		cfg:     cfg,
		records: make(map[string]record.Record),
	}
	return nil
}

func (u *upgraderImpl) DeleteCollection(name string) error {
	if _, ok := u.collections[name]; !ok {
		return persist.Errorf(persist.RetCUnknownCollection, "collection %q does not exist", name)
	}
	delete(u.collections, name)
	return nil
}

// --------------------------------------------------------------------------
// memCollection operations (only ever called on private clones or under read access)
// --------------------------------------------------------------------------

func (c *memCollection) clone() *memCollection {
	out := &memCollection{
		cfg:     c.cfg,
		keys:    make([][]byte, len(c.keys)),
		records: make(map[string]record.Record, len(c.records)),
		seq:     c.seq,
	}
	copy(out.keys, c.keys)
	for k, r := range c.records {
		out.records[k] = r
	}
	return out
}

func (c *memCollection) write(r record.Record, overwrite bool) (any, error) {
	r, key, seq, err := persist.AssignKey(r, c.cfg, c.seq)
	if err != nil {
		return nil, err
	}
	enc, err := persist.EncodeKey(key)
	if err != nil {
		return nil, err
	}

	_, exists := c.records[string(enc)]
	if exists && !overwrite {
		return nil, persist.Errorf(persist.RetCConstraint, "key %v already exists", key)
	}

	// unique fields
	if len(c.cfg.Unique) > 0 {
		for k, other := range c.records {
			if k == string(enc) {
				continue
			}
			if field, conflict := persist.UniqueConflict(r, other, c.cfg.Unique); conflict {
				return nil, persist.Errorf(persist.RetCConstraint, "unique field %q violated by key %v", field, key)
			}
		}
	}

	c.seq = seq
	if !exists {
		i := sort.Search(len(c.keys), func(i int) bool { return bytes.Compare(c.keys[i], enc) >= 0 })
		c.keys = append(c.keys, nil)
		copy(c.keys[i+1:], c.keys[i:])
		c.keys[i] = enc
	}
	c.records[string(enc)] = r.Clone()
	return key, nil
}

func (c *memCollection) delete(key any) error {
	enc, err := persist.EncodeKey(key)
	if err != nil {
		return err
	}
	if _, ok := c.records[string(enc)]; !ok {
		return nil
	}
	delete(c.records, string(enc))
	i := sort.Search(len(c.keys), func(i int) bool { return bytes.Compare(c.keys[i], enc) >= 0 })
	c.keys = append(c.keys[:i], c.keys[i+1:]...)
	return nil
}

func (c *memCollection) clear() {
	c.keys = nil
	c.records = make(map[string]record.Record)
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connImpl struct {
	name   string
	store  *memStore
	closed atomic.Bool
}

func (c *connImpl) Name() string { return c.name }

func (c *connImpl) Version() uint64 {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.store.version
}

func (c *connImpl) CollectionNames() []string {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	names := make([]string, 0, len(c.store.collections))
	for name := range c.store.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *connImpl) Config(name string) (persist.CollectionConfig, bool) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	col, ok := c.store.collections[name]
	if !ok {
		return persist.CollectionConfig{}, false
	}
	return col.cfg, true
}

func (c *connImpl) Transaction(names []string, mode persist.Mode) (persist.Tx, error) {
	if c.closed.Load() {
		return nil, persist.Errorf(persist.RetCClosed, "connection to store %q is closed", c.name)
	}
	if len(names) == 0 {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "transaction needs at least one collection")
	}

	if mode == persist.ReadWrite {
		c.store.writer.Lock()
	}

	c.store.mu.RLock()
	cols := make(map[string]*memCollection, len(names))
	var missing string
	for _, name := range names {
		col, ok := c.store.collections[name]
		if !ok {
			missing = name
			break
		}
		if mode == persist.ReadWrite {
			col = col.clone()
		}
		cols[name] = col
	}
	c.store.mu.RUnlock()

	if missing != "" {
		if mode == persist.ReadWrite {
			c.store.writer.Unlock()
		}
		return nil, persist.Errorf(persist.RetCUnknownCollection, "collection %q does not exist", missing)
	}

	return &txImpl{store: c.store, mode: mode, collections: cols}, nil
}

func (c *connImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.store.conns.Add(-1)
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// txImpl is a transaction over private clones (read-write) or shared snapshots (read-only).
//
// Thread-safety: a transaction must only be used by a single goroutine.
type txImpl struct {
	store       *memStore
	mode        persist.Mode
	collections map[string]*memCollection
	done        bool
}

func (t *txImpl) Mode() persist.Mode { return t.mode }

func (t *txImpl) Collection(name string) (persist.Collection, error) {
	if t.done {
		return nil, persist.Errorf(persist.RetCClosed, "transaction already finished")
	}
	col, ok := t.collections[name]
	if !ok {
		return nil, persist.Errorf(persist.RetCUnknownCollection, "collection %q is not part of the transaction", name)
	}
	return &collectionImpl{tx: t, col: col}, nil
}

func (t *txImpl) Commit() error {
	if t.done {
		return persist.Errorf(persist.RetCClosed, "transaction already finished")
	}
	t.done = true
	if t.mode != persist.ReadWrite {
		return nil
	}

	t.store.mu.Lock()
	for name, col := range t.collections {
		t.store.collections[name] = col
	}
	t.store.mu.Unlock()
	t.store.writer.Unlock()
	return nil
}

func (t *txImpl) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.mode == persist.ReadWrite {
		t.store.writer.Unlock()
	}
	return nil
}

// --------------------------------------------------------------------------
// Collection handle
// --------------------------------------------------------------------------

type collectionImpl struct {
	tx  *txImpl
	col *memCollection
}

func (c *collectionImpl) check(write bool) error {
	if c.tx.done {
		return persist.Errorf(persist.RetCClosed, "transaction already finished")
	}
	if write && c.tx.mode != persist.ReadWrite {
		return persist.Errorf(persist.RetCReadOnly, "write in read-only transaction")
	}
	return nil
}

func (c *collectionImpl) Add(r record.Record) (any, error) {
	if err := c.check(true); err != nil {
		return nil, err
	}
	return c.col.write(r, false)
}

func (c *collectionImpl) Put(r record.Record) (any, error) {
	if err := c.check(true); err != nil {
		return nil, err
	}
	return c.col.write(r, true)
}

func (c *collectionImpl) Delete(key any) error {
	if err := c.check(true); err != nil {
		return err
	}
	return c.col.delete(key)
}

func (c *collectionImpl) Clear() error {
	if err := c.check(true); err != nil {
		return err
	}
	c.col.clear()
	return nil
}

func (c *collectionImpl) Get(key any) (record.Record, bool, error) {
	if err := c.check(false); err != nil {
		return record.Record{}, false, err
	}
	enc, err := persist.EncodeKey(key)
	if err != nil {
		return record.Record{}, false, err
	}
	r, ok := c.col.records[string(enc)]
	if !ok {
		return record.Record{}, false, nil
	}
	return r.Clone(), true, nil
}

func (c *collectionImpl) Count() (int, error) {
	if err := c.check(false); err != nil {
		return 0, err
	}
	return len(c.col.keys), nil
}

func (c *collectionImpl) OpenCursor() (persist.Cursor, error) {
	if err := c.check(false); err != nil {
		return nil, err
	}
	keys := make([][]byte, len(c.col.keys))
	copy(keys, c.col.keys)
	return &cursorImpl{keys: keys, records: c.col.records, pos: -1}, nil
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// cursorImpl iterates over a snapshot of the key list.
// Records deleted by the owning transaction after the cursor was opened are skipped.
type cursorImpl struct {
	keys    [][]byte
	records map[string]record.Record
	pos     int
	current record.Record
	closed  bool
}

func (c *cursorImpl) Next() bool {
	if c.closed {
		return false
	}
	for c.pos+1 < len(c.keys) {
		c.pos++
		if r, ok := c.records[string(c.keys[c.pos])]; ok {
			c.current = r.Clone()
			return true
		}
	}
	c.current = record.Record{}
	return false
}

func (c *cursorImpl) Record() record.Record { return c.current }

func (c *cursorImpl) Err() error { return nil }

func (c *cursorImpl) Close() error {
	c.closed = true
	return nil
}
