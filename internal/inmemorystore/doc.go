// Package inmemorystore provides the run-wide identifier registry used to
// guarantee that every work item is executed at most once per run.
//
// # Concurrency Model
//
// Claims are recorded in a sync.Map. The key space grows monotonically while
// the tree is discovered and entries are never rewritten, which is the access
// pattern sync.Map is built for: concurrent LoadOrStore on disjoint keys with
// no global lock.
//
// The registry is ephemeral. A fresh one is created for each run and nothing
// is persisted.
package inmemorystore
