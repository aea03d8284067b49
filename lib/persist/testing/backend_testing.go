package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
)

// BackendFactory creates a new, empty backend instance for a single test
type BackendFactory func(t *testing.T) persist.Backend

// RunBackendTests runs the conformance test suite for a persist.Backend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenUpgrade", func(t *testing.T) {
			testOpenUpgrade(t, factory(t))
		})

		t.Run("VersionConflict", func(t *testing.T) {
			testVersionConflict(t, factory(t))
		})

		t.Run("FailedUpgrade", func(t *testing.T) {
			testFailedUpgrade(t, factory(t))
		})

		t.Run("AddGetPut", func(t *testing.T) {
			testAddGetPut(t, factory(t))
		})

		t.Run("DeleteClear", func(t *testing.T) {
			testDeleteClear(t, factory(t))
		})

		t.Run("CursorOrder", func(t *testing.T) {
			testCursorOrder(t, factory(t))
		})

		t.Run("AutoIncrement", func(t *testing.T) {
			testAutoIncrement(t, factory(t))
		})

		t.Run("Unique", func(t *testing.T) {
			testUnique(t, factory(t))
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory(t))
		})

		t.Run("Abort", func(t *testing.T) {
			testAbort(t, factory(t))
		})

		t.Run("UnknownCollection", func(t *testing.T) {
			testUnknownCollection(t, factory(t))
		})

		t.Run("DeleteStore", func(t *testing.T) {
			testDeleteStore(t, factory(t))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory(t))
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const storeName = "conformance"

// openDefault opens the test store with the collections "users" (key "id", unique "email")
// and "orders" (key "no", auto increment)
func openDefault(t *testing.T, backend persist.Backend) persist.Conn {
	t.Helper()
	conn, err := backend.Open(context.Background(), storeName, 1, func(u persist.Upgrader) error {
		if err := u.CreateCollection("users", persist.CollectionConfig{KeyField: "id", Unique: []string{"email"}}); err != nil {
			return err
		}
		return u.CreateCollection("orders", persist.CollectionConfig{KeyField: "no", AutoIncrement: true})
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return conn
}

// write runs fn in a read-write transaction on a single collection and commits it
func write(t *testing.T, conn persist.Conn, name string, fn func(c persist.Collection) error) error {
	t.Helper()
	tx, err := conn.Transaction([]string{name}, persist.ReadWrite)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	c, err := tx.Collection(name)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}
	if err := fn(c); err != nil {
		_ = tx.Abort()
		return err
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return nil
}

// readAll returns all records of a collection in cursor order
func readAll(t *testing.T, conn persist.Conn, name string) []record.Record {
	t.Helper()
	tx, err := conn.Transaction([]string{name}, persist.ReadOnly)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Commit()

	c, err := tx.Collection(name)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}
	cur, err := c.OpenCursor()
	if err != nil {
		t.Fatalf("Failed to open cursor: %v", err)
	}
	defer cur.Close()

	var out []record.Record
	for cur.Next() {
		out = append(out, cur.Record())
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	return out
}

func get(t *testing.T, conn persist.Conn, name string, key any) (record.Record, bool) {
	t.Helper()
	tx, err := conn.Transaction([]string{name}, persist.ReadOnly)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Commit()
	c, _ := tx.Collection(name)
	r, ok, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return r, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenUpgrade(t *testing.T, backend persist.Backend) {
	calls := 0
	conn, err := backend.Open(context.Background(), storeName, 1, func(u persist.Upgrader) error {
		calls++
		if u.OldVersion() != 0 || u.NewVersion() != 1 {
			t.Errorf("Expected upgrade 0 -> 1, got %d -> %d", u.OldVersion(), u.NewVersion())
		}
		return u.CreateCollection("users", persist.CollectionConfig{KeyField: "id"})
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if conn.Version() != 1 {
		t.Errorf("Expected version 1, got %d", conn.Version())
	}
	cfg, ok := conn.Config("users")
	if !ok || cfg.KeyField != "id" {
		t.Errorf("Expected config with key field id, got %+v (%v)", cfg, ok)
	}
	_ = conn.Close()

	// same version: no upgrade
	conn, err = backend.Open(context.Background(), storeName, 1, func(u persist.Upgrader) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	_ = conn.Close()
	if calls != 1 {
		t.Errorf("Expected upgrade to run once, ran %d times", calls)
	}

	// higher version: upgrade sees the existing collection
	conn, err = backend.Open(context.Background(), storeName, 2, func(u persist.Upgrader) error {
		if !u.HasCollection("users") {
			t.Error("Expected existing collection to be visible during upgrade")
		}
		if err := u.CreateCollection("users", persist.CollectionConfig{KeyField: "id"}); !errors.Is(err, persist.ErrConstraint) {
			t.Errorf("Expected ErrConstraint for existing collection, got %v", err)
		}
		return u.CreateCollection("posts", persist.CollectionConfig{KeyField: "id"})
	})
	if err != nil {
		t.Fatalf("Failed to upgrade store: %v", err)
	}
	defer conn.Close()

	names := conn.CollectionNames()
	if len(names) != 2 || names[0] != "posts" || names[1] != "users" {
		t.Errorf("Expected sorted collections [posts users], got %v", names)
	}
	if conn.Name() != storeName {
		t.Errorf("Expected store name %s, got %s", storeName, conn.Name())
	}
}

func testVersionConflict(t *testing.T, backend persist.Backend) {
	conn, err := backend.Open(context.Background(), storeName, 3, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	_ = conn.Close()

	if _, err := backend.Open(context.Background(), storeName, 2, nil); !errors.Is(err, persist.ErrVersion) {
		t.Errorf("Expected ErrVersion when opening with a lower version, got %v", err)
	}
	if _, err := backend.Open(context.Background(), storeName, 0, nil); !errors.Is(err, persist.ErrInvalidOperation) {
		t.Errorf("Expected ErrInvalidOperation for version 0, got %v", err)
	}
}

func testFailedUpgrade(t *testing.T, backend persist.Backend) {
	boom := fmt.Errorf("boom")
	_, err := backend.Open(context.Background(), storeName, 1, func(u persist.Upgrader) error {
		_ = u.CreateCollection("users", persist.CollectionConfig{KeyField: "id"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected upgrade error to be returned, got %v", err)
	}

	// nothing of the failed upgrade must be visible
	conn, err := backend.Open(context.Background(), storeName, 1, func(u persist.Upgrader) error {
		if u.OldVersion() != 0 {
			t.Errorf("Expected old version 0 after failed upgrade, got %d", u.OldVersion())
		}
		if u.HasCollection("users") {
			t.Error("Expected collection of failed upgrade to be discarded")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	_ = conn.Close()
}

func testAddGetPut(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	err := write(t, conn, "users", func(c persist.Collection) error {
		key, err := c.Add(record.New("id", 1, "name", "ada", "email", "ada@example.com"))
		if err != nil {
			return err
		}
		if !record.Equal(key, 1) {
			t.Errorf("Expected key 1, got %v", key)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// duplicate key
	err = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Add(record.New("id", 1, "name", "other"))
		return err
	})
	if !errors.Is(err, persist.ErrConstraint) {
		t.Errorf("Expected ErrConstraint for duplicate key, got %v", err)
	}

	// missing key without auto increment
	err = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Add(record.New("name", "nokey"))
		return err
	})
	if !errors.Is(err, persist.ErrInvalidOperation) {
		t.Errorf("Expected ErrInvalidOperation for missing key, got %v", err)
	}

	r, ok := get(t, conn, "users", 1)
	if !ok {
		t.Fatal("Expected record 1 to exist")
	}
	if v, _ := r.Get("name"); v != "ada" {
		t.Errorf("Expected name ada, got %v", v)
	}
	// float lookup finds integer key
	if _, ok := get(t, conn, "users", 1.0); !ok {
		t.Error("Expected lookup with 1.0 to find key 1")
	}

	// put replaces
	err = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Put(record.New("id", 1, "name", "ada lovelace"))
		return err
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	r, _ = get(t, conn, "users", 1)
	if v, _ := r.Get("name"); v != "ada lovelace" {
		t.Errorf("Expected replaced name, got %v", v)
	}
	if r.Has("email") {
		t.Error("Expected Put to replace the whole record")
	}

	if _, ok := get(t, conn, "users", 2); ok {
		t.Error("Expected missing key to return ok=false")
	}
}

func testDeleteClear(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	err := write(t, conn, "users", func(c persist.Collection) error {
		for i := 1; i <= 5; i++ {
			if _, err := c.Add(record.New("id", i)); err != nil {
				return err
			}
		}
		if err := c.Delete(3); err != nil {
			return err
		}
		// deleting a missing key is not an error
		return c.Delete(42)
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := len(readAll(t, conn, "users")); got != 4 {
		t.Errorf("Expected 4 records after delete, got %d", got)
	}

	err = write(t, conn, "users", func(c persist.Collection) error {
		if err := c.Clear(); err != nil {
			return err
		}
		n, err := c.Count()
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("Expected count 0 after clear, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := len(readAll(t, conn, "users")); got != 0 {
		t.Errorf("Expected empty collection after clear, got %d records", got)
	}
}

func testCursorOrder(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	keys := []any{"b", 10, "a", -3, 2.5, 2}
	err := write(t, conn, "users", func(c persist.Collection) error {
		for _, k := range keys {
			if _, err := c.Add(record.New("id", k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	expected := []any{-3, 2, 2.5, 10, "a", "b"}
	all := readAll(t, conn, "users")
	if len(all) != len(expected) {
		t.Fatalf("Expected %d records, got %d", len(expected), len(all))
	}
	for i, r := range all {
		k, _ := r.Get("id")
		if !record.Equal(k, expected[i]) {
			t.Errorf("Expected key %v at position %d, got %v", expected[i], i, k)
		}
	}
}

func testAutoIncrement(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	var keys []any
	err := write(t, conn, "orders", func(c persist.Collection) error {
		for i := 0; i < 2; i++ {
			k, err := c.Add(record.New("item", "x"))
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		// explicit key moves the generator
		if _, err := c.Add(record.New("no", 10, "item", "y")); err != nil {
			return err
		}
		k, err := c.Add(record.New("item", "z"))
		keys = append(keys, k)
		return err
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	expected := []int64{1, 2, 11}
	for i, k := range keys {
		if !record.Equal(k, expected[i]) {
			t.Errorf("Expected generated key %d, got %v", expected[i], k)
		}
	}

	r, ok := get(t, conn, "orders", 11)
	if !ok {
		t.Fatal("Expected generated record to exist")
	}
	if v, _ := r.Get("no"); !record.Equal(v, 11) {
		t.Errorf("Expected generated key to be stored in the record, got %v", v)
	}

	// clear keeps the generator state
	_ = write(t, conn, "orders", func(c persist.Collection) error { return c.Clear() })
	_ = write(t, conn, "orders", func(c persist.Collection) error {
		k, err := c.Add(record.New("item", "w"))
		if !record.Equal(k, 12) {
			t.Errorf("Expected key 12 after clear, got %v", k)
		}
		return err
	})
}

func testUnique(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	err := write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Add(record.New("id", 1, "email", "a@example.com"))
		return err
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Add(record.New("id", 2, "email", "a@example.com"))
		return err
	})
	if !errors.Is(err, persist.ErrConstraint) {
		t.Errorf("Expected ErrConstraint for duplicate unique value, got %v", err)
	}

	// replacing the record holding the value is fine
	err = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Put(record.New("id", 1, "email", "a@example.com", "name", "ada"))
		return err
	})
	if err != nil {
		t.Errorf("Expected Put of the same record to succeed, got %v", err)
	}
}

func testReadOnly(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	tx, err := conn.Transaction([]string{"users"}, persist.ReadOnly)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Commit()

	if tx.Mode() != persist.ReadOnly {
		t.Errorf("Expected mode readonly, got %s", tx.Mode())
	}
	c, _ := tx.Collection("users")
	if _, err := c.Add(record.New("id", 1)); !errors.Is(err, persist.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Add, got %v", err)
	}
	if err := c.Delete(1); !errors.Is(err, persist.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Delete, got %v", err)
	}
	if err := c.Clear(); !errors.Is(err, persist.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Clear, got %v", err)
	}
}

func testAbort(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	tx, err := conn.Transaction([]string{"users", "orders"}, persist.ReadWrite)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	users, _ := tx.Collection("users")
	orders, _ := tx.Collection("orders")
	if _, err := users.Add(record.New("id", 1)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := orders.Add(record.New("item", "x")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	if _, _, err := users.Get(1); !errors.Is(err, persist.ErrClosed) {
		t.Errorf("Expected ErrClosed after abort, got %v", err)
	}
	if got := len(readAll(t, conn, "users")); got != 0 {
		t.Errorf("Expected aborted writes to be discarded, got %d records", got)
	}
	if got := len(readAll(t, conn, "orders")); got != 0 {
		t.Errorf("Expected aborted writes to be discarded, got %d records", got)
	}
}

func testUnknownCollection(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	if _, err := conn.Transaction([]string{"nope"}, persist.ReadOnly); !errors.Is(err, persist.ErrUnknownCollection) {
		t.Errorf("Expected ErrUnknownCollection, got %v", err)
	}
	if _, ok := conn.Config("nope"); ok {
		t.Error("Expected no config for unknown collection")
	}

	tx, err := conn.Transaction([]string{"users"}, persist.ReadOnly)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Commit()
	if _, err := tx.Collection("orders"); !errors.Is(err, persist.ErrUnknownCollection) {
		t.Errorf("Expected ErrUnknownCollection for collection outside the transaction, got %v", err)
	}
}

func testDeleteStore(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	_ = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Add(record.New("id", 1))
		return err
	})

	if err := backend.DeleteStore(context.Background(), storeName); !errors.Is(err, persist.ErrBusy) {
		t.Errorf("Expected ErrBusy while a connection is open, got %v", err)
	}
	_ = conn.Close()

	if err := backend.DeleteStore(context.Background(), storeName); err != nil {
		t.Fatalf("DeleteStore failed: %v", err)
	}
	// deleting again is fine
	if err := backend.DeleteStore(context.Background(), storeName); err != nil {
		t.Errorf("Expected deleting a missing store to succeed, got %v", err)
	}

	conn, err := backend.Open(context.Background(), storeName, 1, func(u persist.Upgrader) error {
		if u.OldVersion() != 0 {
			t.Errorf("Expected fresh store after delete, got old version %d", u.OldVersion())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer conn.Close()
	if len(conn.CollectionNames()) != 0 {
		t.Errorf("Expected no collections after delete, got %v", conn.CollectionNames())
	}
}

func testReopen(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	_ = write(t, conn, "users", func(c persist.Collection) error {
		_, err := c.Add(record.New("id", "k", "nested", record.New("a", []any{1, "x", nil})))
		return err
	})
	_ = conn.Close()

	if _, err := conn.Transaction([]string{"users"}, persist.ReadOnly); !errors.Is(err, persist.ErrClosed) {
		t.Errorf("Expected ErrClosed on closed connection, got %v", err)
	}

	conn = openDefault(t, backend)
	defer conn.Close()
	r, ok := get(t, conn, "users", "k")
	if !ok {
		t.Fatal("Expected record to survive reopen")
	}
	expected := record.New("id", "k", "nested", record.New("a", []any{1, "x", nil}))
	if !r.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, r)
	}
}

func testConcurrentWriters(t *testing.T, backend persist.Backend) {
	conn := openDefault(t, backend)
	defer conn.Close()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tx, err := conn.Transaction([]string{"orders"}, persist.ReadWrite)
				if err != nil {
					t.Errorf("Failed to begin transaction: %v", err)
					return
				}
				c, _ := tx.Collection("orders")
				if _, err := c.Add(record.New("worker", w)); err != nil {
					_ = tx.Abort()
					t.Errorf("Add failed: %v", err)
					return
				}
				if err := tx.Commit(); err != nil {
					t.Errorf("Commit failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := len(readAll(t, conn, "orders")); got != workers*perWorker {
		t.Errorf("Expected %d records, got %d", workers*perWorker, got)
	}
}
