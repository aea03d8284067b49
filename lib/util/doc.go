// Package util provides the building blocks shared by the mirror packages:
//
//   - Queue: an unbounded multi-producer single-consumer queue, used by the mirror
//     to hand write-behind operations to its persistence goroutine
//   - statistics: Stats, DistributionStats and a SizeHistogram used to describe
//     the in-memory state of a mirror without keeping per-record bookkeeping
package util
