// Package mirror keeps an in-memory copy of a persisted store and answers reads and
// queries from memory while writes are mirrored to the backend in the background.
//
// Key Components:
//
//   - Mirror: the registry. It holds the declared collection schemas, owns the
//     connection to the persist.Backend and the in-memory copy of every collection.
//
//   - Sync: Open starts one loader goroutine per collection. A barrier counts the
//     finished loads and fires the ready callback exactly once, also for a store
//     without collections. Views are only handed out after the barrier fired.
//
//   - Storage: the writable view of one collection (Insert, Get, GetIndex, Delete,
//     Update, Truncate, FetchAll, Count, Tx). Keys are looked up by a linear scan.
//     Every mutation is pushed to a write-behind queue drained by a single goroutine,
//     failures reach Options.OnPersistError and are never reported to the caller.
//
//   - Result: the read-only view produced by Select and InnerJoin. Both Storage and
//     Result implement View, only Storage has mutators. Writable converts a View back.
//
// Usage:
//
//	m := mirror.New("shop", memstore.NewBackend(), nil)
//	_ = m.Declare("users", persist.CollectionConfig{KeyField: "id"})
//	_ = m.Open(ctx, nil)
//	_ = m.WaitReady(ctx)
//
//	users, _ := m.With("users")
//	_, _ = users.Insert(record.New("id", 1, "name", "ada"))
//	names := users.Select("name") // records {"users.name": "ada"}
//
// Consistency: the in-memory copy is the source of truth after the sync. There is no
// atomicity across collections and no read back of persisted writes.
package mirror
