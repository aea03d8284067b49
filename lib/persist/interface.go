package persist

import (
	"context"

	"github.com/ValentinKolb/dMirror/lib/record"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Mode is the access mode of a transaction
type Mode int

const (
	ReadOnly  Mode = iota // Transaction may only read
	ReadWrite             // Transaction may read and write
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// CollectionConfig is the schema of a single collection.
type CollectionConfig struct {
	// KeyField is the record field holding the primary key.
	KeyField string `json:"key_field" yaml:"key"`
	// AutoIncrement lets the store generate integer keys for records without a key.
	AutoIncrement bool `json:"auto_increment" yaml:"autoIncrement"`
	// Unique lists fields whose values must be unique across the collection.
	Unique []string `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// UpgradeFunc is called while opening a store that is new or whose version is lower
// than the requested one. It is the only place where collections can be created or
// deleted. Returning an error aborts the open and leaves the store unchanged.
type UpgradeFunc func(u Upgrader) error

// Backend is a named-store storage engine. A backend manages any number of stores,
// each store holds any number of named collections.
type Backend interface {
	// Open opens a connection to the named store.
	// The upgrade function is invoked if the store does not exist yet or if version is
	// greater than the stored version. Opening with a lower version fails with ErrVersion.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (conn Conn, err error)

	// DeleteStore irreversibly deletes the named store with all collections.
	// It fails with ErrBusy while a connection to the store is open.
	// Deleting a store that does not exist is not an error.
	DeleteStore(ctx context.Context, name string) (err error)
}

// Upgrader gives an UpgradeFunc access to the store schema.
type Upgrader interface {
	// OldVersion returns the version before the upgrade (0 for a new store)
	OldVersion() uint64
	// NewVersion returns the version the store is upgraded to
	NewVersion() uint64
	// HasCollection reports whether the store already has the named collection
	HasCollection(name string) bool
	// CreateCollection creates a new collection. It fails with ErrConstraint if it exists.
	CreateCollection(name string, cfg CollectionConfig) error
	// DeleteCollection removes a collection and all records in it.
	DeleteCollection(name string) error
}

// Conn is an open connection to a store.
type Conn interface {
	// Name returns the store name
	Name() string
	// Version returns the schema version of the store
	Version() uint64
	// CollectionNames returns the names of all collections in sorted order
	CollectionNames() []string
	// Config returns the schema of the named collection
	Config(name string) (cfg CollectionConfig, ok bool)
	// Transaction starts a transaction bound to the named collections.
	Transaction(names []string, mode Mode) (tx Tx, err error)
	// Close closes the connection. Open transactions must be finished before.
	Close() error
}

// Tx is a transaction bound to a fixed set of collections.
// A transaction must be finished with either Commit or Abort.
type Tx interface {
	// Mode returns the access mode of the transaction
	Mode() Mode
	// Collection returns a handle to one of the collections the transaction is bound to.
	Collection(name string) (c Collection, err error)
	// Commit makes all writes of the transaction visible.
	Commit() error
	// Abort discards all writes of the transaction.
	Abort() error
}

// Collection is the handle to a single collection inside a transaction.
type Collection interface {
	// Add inserts a new record. It fails with ErrConstraint if the key already exists or
	// if a unique field is violated. Collections with auto increment generate a key for
	// records without one. The key of the stored record is returned.
	Add(r record.Record) (key any, err error)
	// Put inserts or replaces the record with the same key.
	Put(r record.Record) (key any, err error)
	// Delete removes the record with the given key. Deleting a missing key is not an error.
	Delete(key any) error
	// Clear removes all records.
	Clear() error
	// Get returns the record with the given key.
	Get(key any) (r record.Record, ok bool, err error)
	// Count returns the number of records.
	Count() (int, error)
	// OpenCursor returns a cursor over all records in key order.
	OpenCursor() (Cursor, error)
}

// Cursor iterates over the records of a collection. The cursor starts before the first
// record, Next advances it:
//
//	for cur.Next() {
//		r := cur.Record()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	// Next advances the cursor and reports whether a record is available.
	Next() bool
	// Record returns the current record. The record is owned by the caller.
	Record() record.Record
	// Err returns the error that stopped the iteration, if any.
	Err() error
	// Close releases the cursor.
	Close() error
}
