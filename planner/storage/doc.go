// Package storage is the persistent key-value store behind "save plan".
//
// Each session writes its plan file under its own bucket with the key
// "current-plan". GormStore keeps entries in a kv_entries table through gorm,
// on SQLite (github.com/glebarez/sqlite, pure Go) or Postgres. MemoryStore
// backs tests and the "memory" driver.
//
// The store is best-effort: every failure wraps
// engine.ErrPersistenceUnavailable, and callers log it and carry on with the
// in-memory state.
package storage
