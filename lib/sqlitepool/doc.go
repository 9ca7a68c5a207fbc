// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the standard SQLite connection pool for
// Docket's local read models.
//
// Docket's source of truth is Matrix room state and timelines; SQLite
// holds derived indexes (lib/registryindex) and CLI-side caches that
// can always be rebuilt from the rooms. The pool wraps
// zombiezen.com/go/sqlite with defaults tuned for that role: WAL
// journal mode, NORMAL synchronous, memory-mapped reads, and a busy
// timeout for write contention.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: concurrent readers, a single writer, neither
//     blocking the other.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across power failure — acceptable because every table in
//     a Docket database is a rebuildable projection of room state.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: projections manage referential integrity by
//     construction; FK cascades in a rebuildable index are a footgun.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/docket/index.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. Consumers write
// SQL, use sqlitex.Execute for cached statements, and manage
// transactions with sqlitex.ImmediateTransaction. The goal is a shared
// foundation — one dependency, one set of pragmas, one pool pattern —
// not an abstraction layer that fights SQLite's strengths.
package sqlitepool
