// Package boltstore implements persist.Backend on top of bbolt (go.etcd.io/bbolt).
//
// Every store is a single bbolt file named "<store>.bolt" in the configured
// directory. Inside the file:
//
//   - the bucket "__dmirror_meta" holds the schema version and the JSON encoded
//     configuration of every collection
//   - every collection is a bucket named "c:<collection>", keyed by the order
//     preserving key encoding of the persist package, with records encoded by
//     the configured codec
//   - the bucket sequence of a collection is its auto increment generator
//
// bbolt locks the file exclusively, so all connections to a store opened through
// one backend share a single *bbolt.DB.
package boltstore
