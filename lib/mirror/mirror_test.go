package mirror

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/persist/boltstore"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistAcrossOpen(t *testing.T) {
	backend := newBackend()
	decls := []Declaration{
		{Name: "users", Config: cfg("id")},
		{Name: "orders", Config: persist.CollectionConfig{KeyField: "no", AutoIncrement: true}},
	}

	m := openMirror(t, backend, nil, decls...)
	users, orders := with(t, m, "users"), with(t, m, "orders")
	insertAll(t, users, record.New("id", "b", "n", 1), record.New("id", "a", "n", 2), record.New("id", "c", "n", 3))
	insertAll(t, orders, record.New("item", "x"), record.New("item", "y"))
	users.Delete("c")
	_, err := users.Update("a", Change{"n", 20})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// views of a closed mirror see nothing
	assert.Equal(t, 0, users.Count())
	_, err = users.Insert(record.New("id", "z"))
	assert.ErrorIs(t, err, ErrNotOpen)

	m = openMirror(t, backend, nil, decls...)
	defer m.Close()

	// loaded in key order of the backend
	users = with(t, m, "users")
	all := users.FetchAll()
	require.Len(t, all, 2)
	assert.True(t, all[0].Equal(record.New("id", "a", "n", 20)))
	assert.True(t, all[1].Equal(record.New("id", "b", "n", 1)))

	// auto increment continues after the loaded keys
	next, err := with(t, m, "orders").Insert(record.New("item", "z"))
	require.NoError(t, err)
	no, _ := next.Get("no")
	assert.Equal(t, int64(3), no)
}

func TestLargeIntegerKeysSurviveReopen(t *testing.T) {
	backend := newBackend()
	m := openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	users := with(t, m, "users")

	insertAll(t, users, record.New("id", int64(persist.MaxIntKey)), record.New("id", int64(persist.MaxIntKey-1)))
	_, err := users.Insert(record.New("id", int64(persist.MaxIntKey+1)))
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = users.Update(int64(persist.MaxIntKey), Change{"id", int64(-persist.MaxIntKey - 1)})
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, 2, users.Count())
	require.NoError(t, m.Close())

	m = openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	defer m.Close()
	assert.Equal(t, 2, with(t, m, "users").Count())
}

func TestKeyChangeIsPersisted(t *testing.T) {
	backend := newBackend()
	m := openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	users := with(t, m, "users")
	insertAll(t, users, record.New("id", 1, "name", "ada"))
	_, err := users.Update(1, Change{"id", 2})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m = openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	defer m.Close()
	users = with(t, m, "users")
	assert.Equal(t, 1, users.Count())
	_, ok := users.Get(2)
	assert.True(t, ok)
}

func TestTruncateIsPersisted(t *testing.T) {
	backend := newBackend()
	m := openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	users := with(t, m, "users")
	insertAll(t, users, record.New("id", 1), record.New("id", 2))
	require.NoError(t, users.Truncate())
	insertAll(t, users, record.New("id", 3))
	require.NoError(t, m.Flush(context.Background()))

	tx, err := users.Tx(persist.ReadOnly)
	require.NoError(t, err)
	defer tx.Commit()
	c, err := tx.Collection("users")
	require.NoError(t, err)
	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := c.Get(3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoltBackendRoundTrip(t *testing.T) {
	backend, err := boltstore.NewBackend(&boltstore.Options{Dir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	decl := Declaration{Name: "notes", Config: persist.CollectionConfig{KeyField: "id", AutoIncrement: true}}

	m := openMirror(t, backend, nil, decl)
	notes := with(t, m, "notes")
	insertAll(t, notes,
		record.New("text", "first", "tags", []any{"a", "b"}),
		record.New("text", "second", "meta", record.New("pinned", true)),
	)
	require.NoError(t, m.Close())

	m = openMirror(t, backend, nil, decl)
	defer m.Close()
	all := with(t, m, "notes").FetchAll()
	require.Len(t, all, 2)
	assert.True(t, all[0].Equal(record.New("text", "first", "tags", []any{"a", "b"}, "id", 1)))
	assert.True(t, all[1].Equal(record.New("text", "second", "meta", record.New("pinned", true), "id", 2)))
}

func TestReadyFiresOnceAfterAllLoads(t *testing.T) {
	backend := newBackend()
	decls := []Declaration{
		{Name: "a", Config: cfg("id")},
		{Name: "b", Config: cfg("id")},
		{Name: "empty", Config: cfg("id")},
	}

	// seed the store
	m := openMirror(t, backend, nil, decls...)
	insertAll(t, with(t, m, "a"), record.New("id", 1), record.New("id", 2))
	insertAll(t, with(t, m, "b"), record.New("id", 3))
	require.NoError(t, m.Close())

	gates := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	var calls atomic.Int32
	var readyErr atomic.Value
	m = New("test", &faultyBackend{Backend: backend, gates: gates}, nil)
	require.NoError(t, m.DeclareAll(decls))
	require.NoError(t, m.Open(context.Background(), func(err error) {
		calls.Add(1)
		if err != nil {
			readyErr.Store(err)
		}
	}))
	defer m.Close()

	// "empty" finishes first, "b" second, nothing may be visible before "a" finished
	close(gates["b"])
	time.Sleep(20 * time.Millisecond)
	select {
	case <-m.Ready():
		t.Fatal("ready before all collections were loaded")
	default:
	}
	_, err := m.With("b")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int32(0), calls.Load())

	close(gates["a"])
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.WaitReady(ctx))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Nil(t, readyErr.Load())

	assert.Equal(t, 2, with(t, m, "a").Count())
	assert.Equal(t, 1, with(t, m, "b").Count())
	assert.Equal(t, 0, with(t, m, "empty").Count())
}

func TestReadyReportsLoadErrors(t *testing.T) {
	backend := newBackend()
	decls := []Declaration{{Name: "a", Config: cfg("id")}, {Name: "b", Config: cfg("id")}}

	m := openMirror(t, backend, nil, decls...)
	insertAll(t, with(t, m, "a"), record.New("id", 1))
	insertAll(t, with(t, m, "b"), record.New("id", 2))
	require.NoError(t, m.Close())

	m = New("test", &faultyBackend{Backend: backend, failLoads: map[string]bool{"b": true}}, nil)
	require.NoError(t, m.DeclareAll(decls))
	done := make(chan error, 1)
	require.NoError(t, m.Open(context.Background(), func(err error) { done <- err }))
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.WaitReady(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `collection "b"`)
	assert.ErrorIs(t, <-done, persist.NewError(persist.RetCInternalError, ""))

	// the failed collection stays usable but empty
	assert.Equal(t, 1, with(t, m, "a").Count())
	assert.Equal(t, 0, with(t, m, "b").Count())
}

func TestReadyWithoutCollections(t *testing.T) {
	m := New("test", newBackend(), nil)
	done := make(chan error, 2)
	require.NoError(t, m.Open(context.Background(), func(err error) { done <- err }))
	defer m.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ready callback did not fire for an empty store")
	}
	assert.Empty(t, m.Collections())
	assert.Len(t, done, 0)
}

func TestWithErrors(t *testing.T) {
	m := New("test", newBackend(), nil)
	require.NoError(t, m.Declare("users", cfg("id")))

	_, err := m.With("users")
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, m.Open(context.Background(), nil))
	defer m.Close()
	require.NoError(t, m.WaitReady(context.Background()))

	_, err = m.With("nope")
	assert.ErrorIs(t, err, ErrUnknownCollection)

	s, err := m.With("users")
	require.NoError(t, err)
	assert.Equal(t, "users", s.Name())
	assert.False(t, s.Derived())
}

func TestFlushRacingClose(t *testing.T) {
	for round := 0; round < 20; round++ {
		m := openMirror(t, newBackend(), nil, Declaration{Name: "users", Config: cfg("id")})
		insertAll(t, with(t, m, "users"), record.New("id", round))

		errs := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs <- m.Flush(ctx)
		}()
		require.NoError(t, m.Close())

		err := <-errs
		if err != nil {
			assert.ErrorIs(t, err, ErrNotOpen, "round %d", round)
		}
	}
}

func TestLifecycleErrors(t *testing.T) {
	backend := newBackend()
	m := New("test", backend, nil)

	assert.ErrorIs(t, m.Close(), ErrNotOpen)
	assert.ErrorIs(t, m.Flush(context.Background()), ErrNotOpen)
	assert.ErrorIs(t, m.Declare("", cfg("id")), ErrInvalidSchema)
	assert.ErrorIs(t, m.Declare("users", cfg("")), ErrInvalidSchema)
	require.NoError(t, m.Declare("users", cfg("id")))

	require.NoError(t, m.Open(context.Background(), nil))
	assert.ErrorIs(t, m.Open(context.Background(), nil), ErrAlreadyOpen)
	assert.ErrorIs(t, m.Declare("more", cfg("id")), ErrAlreadyOpen)
	assert.ErrorIs(t, m.Drop(context.Background()), ErrStillOpen)

	require.NoError(t, m.WaitReady(context.Background()))
	insertAll(t, with(t, m, "users"), record.New("id", 1))
	require.NoError(t, m.Close())

	require.NoError(t, m.Drop(context.Background()))

	// the dropped store starts empty
	m = openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	defer m.Close()
	assert.Equal(t, 0, with(t, m, "users").Count())
}

func TestPersistErrorHook(t *testing.T) {
	errs := make(chan *PersistError, 4)
	opts := DefaultOptions()
	opts.OnPersistError = func(err *PersistError) { errs <- err }

	m := openMirror(t, &faultyBackend{Backend: newBackend(), failWrites: true}, opts,
		Declaration{Name: "users", Config: cfg("id")})
	defer m.Close()

	users := with(t, m, "users")
	_, err := users.Insert(record.New("id", 1))
	require.NoError(t, err, "persistence failures are not reported to the caller")
	require.NoError(t, m.Flush(context.Background()))

	require.Len(t, errs, 1)
	perr := <-errs
	assert.Equal(t, "add", perr.Op)
	assert.Equal(t, "users", perr.Collection)
	assert.Equal(t, int64(1), perr.Key)

	var backendErr *persist.Error
	require.True(t, errors.As(perr, &backendErr))
	assert.Equal(t, persist.RetCInternalError, backendErr.Code)

	// memory is the source of truth
	_, ok := users.Get(1)
	assert.True(t, ok)
}

func TestNewCollectionNeedsVersionBump(t *testing.T) {
	backend := newBackend()
	m := openMirror(t, backend, nil, Declaration{Name: "users", Config: cfg("id")})
	require.NoError(t, m.Close())

	// same version: the store is not upgraded
	m = openMirror(t, backend, nil,
		Declaration{Name: "users", Config: cfg("id")},
		Declaration{Name: "posts", Config: cfg("id")})
	assert.Equal(t, []string{"users"}, m.Collections())
	require.NoError(t, m.Close())

	opts := DefaultOptions()
	opts.Version = 2
	m = openMirror(t, backend, opts,
		Declaration{Name: "users", Config: cfg("id")},
		Declaration{Name: "posts", Config: cfg("id")})
	defer m.Close()
	assert.Equal(t, []string{"posts", "users"}, m.Collections())

	c, ok := m.Config("posts")
	require.True(t, ok)
	assert.Equal(t, "id", c.KeyField)
}

func TestLoadSchema(t *testing.T) {
	schema := `
version: 3
collections:
  users:
    key: id
    unique: [email]
  orders:
    key: no
    autoIncrement: true
`
	m := New("test", newBackend(), nil)
	require.NoError(t, m.LoadSchema(strings.NewReader(schema)))
	require.NoError(t, m.Open(context.Background(), nil))
	defer m.Close()
	require.NoError(t, m.WaitReady(context.Background()))

	assert.Equal(t, []string{"orders", "users"}, m.Collections())
	c, _ := m.Config("orders")
	assert.True(t, c.AutoIncrement)
	c, _ = m.Config("users")
	assert.Equal(t, []string{"email"}, c.Unique)

	_, err := ParseSchema(strings.NewReader("collections:\n  x:\n    keyfield: id\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
	_, err = ParseSchema(strings.NewReader("collections:\n  x:\n    autoIncrement: true\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestInfo(t *testing.T) {
	m := newShop(t)
	insertAll(t, with(t, m, "users"), record.New("id", 1, "name", "ada"), record.New("id", 2, "name", "grace"))
	insertAll(t, with(t, m, "items"), record.New("sku", "x"))

	info := m.Info()
	assert.True(t, info.Open)
	assert.True(t, info.Ready)
	assert.Equal(t, 3, info.Records)
	require.Len(t, info.Collections, 3)
	assert.Equal(t, "items", info.Collections[0].Name)
	assert.Equal(t, 1, info.Collections[0].Records)
	assert.Equal(t, 2, info.Collections[2].Records)
	assert.Greater(t, info.Collections[2].Bytes, int64(0))
	assert.Greater(t, info.AvgRecordSize, 0)
	assert.Equal(t, float64(2), info.Distribution.Max)

	var total int64
	for _, c := range info.Collections {
		total += c.Bytes
	}
	assert.Equal(t, total, info.TotalBytes)

	require.NotEmpty(t, info.SizeBuckets)
	var share float64
	for _, b := range info.SizeBuckets {
		share += b.Percent
	}
	assert.InDelta(t, 100, share, 0.001)

	empty := New("empty", newBackend(), nil).Info()
	assert.Zero(t, empty.TotalBytes)
	assert.Empty(t, empty.SizeBuckets)
}

func TestMetricsExposed(t *testing.T) {
	m := newShop(t)
	insertAll(t, with(t, m, "users"), record.New("id", 1))
	require.NoError(t, m.Flush(context.Background()))

	var buf bytes.Buffer
	WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `dmirror_persist_ops_total{store="test",op="add"}`)
	assert.Contains(t, out, `dmirror_sync_records_total{store="test"}`)
}
