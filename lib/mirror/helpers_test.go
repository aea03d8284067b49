package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/persist/memstore"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/stretchr/testify/require"
)

// openMirror declares the collections on a fresh mirror of backend, opens it and
// waits for the sync.
func openMirror(t *testing.T, backend persist.Backend, opts *Options, decls ...Declaration) *Mirror {
	t.Helper()
	m := New("test", backend, opts)
	require.NoError(t, m.DeclareAll(decls))
	require.NoError(t, m.Open(context.Background(), nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.WaitReady(ctx))
	return m
}

// newShop opens a mirror with the collections used by most tests:
// users (key id, unique email), orders (key no, auto increment) and items (key sku)
func newShop(t *testing.T) *Mirror {
	t.Helper()
	m := openMirror(t, memstore.NewBackend(), nil,
		Declaration{Name: "users", Config: persist.CollectionConfig{KeyField: "id", Unique: []string{"email"}}},
		Declaration{Name: "orders", Config: persist.CollectionConfig{KeyField: "no", AutoIncrement: true}},
		Declaration{Name: "items", Config: persist.CollectionConfig{KeyField: "sku"}},
	)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func with(t *testing.T, m *Mirror, name string) *Storage {
	t.Helper()
	s, err := m.With(name)
	require.NoError(t, err)
	return s
}

func insertAll(t *testing.T, s *Storage, records ...record.Record) {
	t.Helper()
	for _, r := range records {
		_, err := s.Insert(r)
		require.NoError(t, err)
	}
}

// --------------------------------------------------------------------------
// Backend wrapper with fault injection
// --------------------------------------------------------------------------

// faultyBackend wraps a backend. Cursors of collections with a gate block until the
// gate is closed, cursors of collections in failLoads fail, writes fail if failWrites is set.
type faultyBackend struct {
	persist.Backend
	gates      map[string]chan struct{}
	failLoads  map[string]bool
	failWrites bool
}

func (b *faultyBackend) Open(ctx context.Context, name string, version uint64, upgrade persist.UpgradeFunc) (persist.Conn, error) {
	conn, err := b.Backend.Open(ctx, name, version, upgrade)
	if err != nil {
		return nil, err
	}
	return &faultyConn{Conn: conn, b: b}, nil
}

type faultyConn struct {
	persist.Conn
	b *faultyBackend
}

func (c *faultyConn) Transaction(names []string, mode persist.Mode) (persist.Tx, error) {
	tx, err := c.Conn.Transaction(names, mode)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, b: c.b}, nil
}

type faultyTx struct {
	persist.Tx
	b *faultyBackend
}

func (t *faultyTx) Collection(name string) (persist.Collection, error) {
	c, err := t.Tx.Collection(name)
	if err != nil {
		return nil, err
	}
	return &faultyCollection{Collection: c, gate: t.b.gates[name], failLoad: t.b.failLoads[name], fail: t.b.failWrites}, nil
}

type faultyCollection struct {
	persist.Collection
	gate     chan struct{}
	failLoad bool
	fail     bool
}

func (c *faultyCollection) OpenCursor() (persist.Cursor, error) {
	if c.gate != nil {
		<-c.gate
	}
	if c.failLoad {
		return nil, persist.Errorf(persist.RetCInternalError, "corrupt page")
	}
	return c.Collection.OpenCursor()
}

func (c *faultyCollection) Add(r record.Record) (any, error) {
	if c.fail {
		return nil, persist.Errorf(persist.RetCInternalError, "disk full")
	}
	return c.Collection.Add(r)
}

func (c *faultyCollection) Put(r record.Record) (any, error) {
	if c.fail {
		return nil, persist.Errorf(persist.RetCInternalError, "disk full")
	}
	return c.Collection.Put(r)
}

func newBackend() persist.Backend {
	return memstore.NewBackend()
}

func cfg(key string) persist.CollectionConfig {
	return persist.CollectionConfig{KeyField: key}
}
