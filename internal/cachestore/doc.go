// Package cachestore persists produced artifacts between builds.
//
// A store is a directory holding a SQLite index (index.db), a flat payload
// namespace fanned out by hash prefix (payloads/ab/abcdef...), a scratch
// directory for producers (tmp/), a layout version marker and a process lock.
// Payload bytes are always durable before the index row that references them,
// so a crash can leave an orphaned payload but never a row pointing at a
// partial file. Rows whose payload has gone missing are removed on lookup and
// reported as misses.
//
// The store is an explicit value; callers open one per process and pass it to
// the coordinator and lifecycle manager. Index mutation is serialized inside
// the store.
package cachestore
