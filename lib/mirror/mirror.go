package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("mirror")

// Mirror is the registry of a mirrored store. It holds the declared schema, owns the
// connection to the backend and the in-memory copy of every collection.
//
// Thread-safety: all methods are safe for concurrent use.
type Mirror struct {
	name    string
	backend persist.Backend
	opts    Options
	metrics *storeMetrics

	mu          sync.RWMutex
	schema      map[string]persist.CollectionConfig
	collections map[string]*collection
	conn        persist.Conn
	writer      *writer
	cancel      context.CancelFunc
	loads       *sync.WaitGroup // loads of the current Open
	generation  uint64 // incremented by every Open, stale loads compare against it
	open        bool
	ready       bool
	readyCh     chan struct{}
	readyErr    error
}

// collection is the in-memory copy of a single collection
type collection struct {
	cfg     persist.CollectionConfig
	records []record.Record
	seq     uint64 // auto increment state
}

// New creates a mirror of the named store.
// If opts is nil, DefaultOptions() is used.
func New(storeName string, backend persist.Backend, opts *Options) *Mirror {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Version == 0 {
		o.Version = 1
	}

	return &Mirror{
		name:        storeName,
		backend:     backend,
		opts:        o,
		metrics:     newStoreMetrics(storeName),
		schema:      make(map[string]persist.CollectionConfig),
		collections: make(map[string]*collection),
		readyCh:     make(chan struct{}),
	}
}

// Name returns the store name
func (m *Mirror) Name() string {
	return m.name
}

// Declare registers the schema of a collection. Collections missing in the store are
// created by the next Open. Declaring a name twice replaces the earlier config.
func (m *Mirror) Declare(name string, cfg persist.CollectionConfig) error {
	if err := persist.ValidateConfig(name, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrAlreadyOpen
	}
	cfg.Unique = append([]string(nil), cfg.Unique...)
	m.schema[name] = cfg
	return nil
}

// Open connects to the backend, creates declared collections the store lacks and
// starts loading every collection of the store into memory. It returns as soon as the
// loads are started: onReady (may be nil) is called once all of them finished, Ready
// and WaitReady expose the same barrier.
func (m *Mirror) Open(ctx context.Context, onReady ReadyFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return ErrAlreadyOpen
	}

	conn, err := m.backend.Open(ctx, m.name, m.opts.Version, m.upgrade)
	if err != nil {
		return fmt.Errorf("mirror: failed to open store %q: %w", m.name, err)
	}

	names := conn.CollectionNames()
	m.collections = make(map[string]*collection, len(names))
	for _, name := range names {
		cfg, ok := conn.Config(name)
		if !ok {
			cfg = m.schema[name]
		}
		m.collections[name] = &collection{cfg: cfg}
	}
	for name := range m.schema {
		if _, ok := m.collections[name]; !ok {
			log.Warningf("collection %q is declared but missing in store %q (version %d), raise the version to create it", name, m.name, conn.Version())
		}
	}

	m.conn = conn
	m.open = true
	m.ready = false
	m.readyErr = nil
	m.readyCh = make(chan struct{})
	m.generation++
	m.writer = newWriter(m.name, conn, m.opts.OnPersistError, m.metrics)

	loadCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.loads = &sync.WaitGroup{}
	m.startSync(loadCtx, names, onReady)

	log.Infof("opened store %q (version %d) with %d collections", m.name, conn.Version(), len(names))
	return nil
}

// upgrade creates every declared collection the store lacks
func (m *Mirror) upgrade(u persist.Upgrader) error {
	names := make([]string, 0, len(m.schema))
	for name := range m.schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if u.HasCollection(name) {
			continue
		}
		if err := u.CreateCollection(name, m.schema[name]); err != nil {
			return fmt.Errorf("mirror: failed to create collection %q: %w", name, err)
		}
		log.Infof("created collection %q in store %q (version %d -> %d)", name, m.name, u.OldVersion(), u.NewVersion())
	}
	return nil
}

// Close stops the sync, waits until every issued write was attempted and releases
// the connection. The mirror can be opened again afterwards.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return ErrNotOpen
	}
	m.open = false
	m.cancel()
	w, conn, loads := m.writer, m.conn, m.loads
	m.writer, m.conn, m.loads = nil, nil, nil
	m.collections = make(map[string]*collection)
	m.mu.Unlock()

	// loads and writes use the connection, both must be finished before it is closed
	loads.Wait()
	w.stop()

	if err := conn.Close(); err != nil {
		return fmt.Errorf("mirror: failed to close store %q: %w", m.name, err)
	}
	log.Infof("closed store %q", m.name)
	return nil
}

// Flush blocks until every write issued before the call was attempted.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.RLock()
	w := m.writer
	m.mu.RUnlock()
	if w == nil {
		return ErrNotOpen
	}
	return w.flush(ctx)
}

// Drop irreversibly deletes the store with all collections.
// The mirror must be closed.
func (m *Mirror) Drop(ctx context.Context) error {
	m.mu.RLock()
	open := m.open
	m.mu.RUnlock()
	if open {
		return ErrStillOpen
	}

	if err := m.backend.DeleteStore(ctx, m.name); err != nil {
		return fmt.Errorf("mirror: failed to drop store %q: %w", m.name, err)
	}
	log.Infof("dropped store %q", m.name)
	return nil
}

// With returns the view of the named collection.
// It fails with ErrNotReady until the initial sync finished and with
// ErrUnknownCollection for names the store doesn't know.
func (m *Mirror) With(name string) (*Storage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.lookup(name); err != nil {
		return nil, err
	}
	return &Storage{mirror: m, name: name}, nil
}

// Collections returns the names of all collections of the open store in sorted order.
func (m *Mirror) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectionNames()
}

// collectionNames returns the sorted collection names, the caller must hold the lock
func (m *Mirror) collectionNames() []string {
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the schema of a collection of the open store.
func (m *Mirror) Config(name string) (persist.CollectionConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return persist.CollectionConfig{}, false
	}
	return c.cfg, true
}

// Ready returns a channel that is closed once the sync of the current Open finished.
func (m *Mirror) Ready() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readyCh
}

// WaitReady blocks until the sync finished and returns its error.
func (m *Mirror) WaitReady(ctx context.Context) error {
	select {
	case <-m.Ready():
		m.mu.RLock()
		defer m.mu.RUnlock()
		if !m.open {
			return ErrNotOpen
		}
		return m.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lookup returns the collection if the mirror is open and synced.
// The caller must hold the lock.
func (m *Mirror) lookup(name string) (*collection, error) {
	if !m.open {
		return nil, ErrNotOpen
	}
	if !m.ready {
		return nil, ErrNotReady
	}
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return c, nil
}
