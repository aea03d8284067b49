// Package persist defines the contract between the mirror and its durable backends.
//
// A Backend manages named stores. A store has a schema version and a set of named
// collections, each with a CollectionConfig (key field, auto increment, unique fields).
// Collections can only be created or deleted by the UpgradeFunc passed to Open,
// which runs when a store is new or opened with a higher version.
//
// All record access happens in transactions bound to a fixed set of collections:
//
//	tx, err := conn.Transaction([]string{"users"}, persist.ReadWrite)
//	c, err := tx.Collection("users")
//	key, err := c.Add(record.New("id", 1, "name", "ada"))
//	err = tx.Commit()
//
// Keys are numbers or strings. Their natural order (numbers before strings, numbers by
// value, strings bytewise) is provided by EncodeKey and is the iteration order of cursors.
//
// Implementations:
//   - memstore: in memory, used for tests and ephemeral mirrors
//   - boltstore: durable, backed by bbolt
//
// The testing subpackage holds the conformance suite every backend must pass.
package persist
