// Package store provides the breadcrumb key-value store.
//
// The async job tracker needs only two operations from storage:
//
//	Put(key, value)  - write or overwrite the bytes at key
//	Get(key)         - read the bytes at key, or ErrNotFound
//
// Keys are opaque strings produced by canon.MakeKey (optionally prefixed).
// Values are opaque bytes; the tracker stores JSON breadcrumbs.
//
// # Implementations
//
//   - MemoryStore: in-process map, used by tests and the local mode
//   - SQLStore: a single breadcrumbs table on SQLite (mattn/go-sqlite3) or
//     Postgres (lib/pq), queries built with squirrel
//
// # Concurrency
//
// Concurrent writers to the same key race; last write wins. There is no
// compare-and-swap. Callers that must not double-submit work for a key
// serialize on the key themselves.
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
