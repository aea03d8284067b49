// Package memstore implements persist.Backend fully in memory.
//
// The backend is used for tests and for the "memory" backend of the CLI.
// Stores survive closing and reopening connections but not the process.
//
// Transactions follow a copy-on-write scheme: read-write transactions are
// serialized per store and work on clones of their collections, which replace
// the committed collections on Commit. Read-only transactions read the committed
// state at the time they were started and never block writers.
package memstore
