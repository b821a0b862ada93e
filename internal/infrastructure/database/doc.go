// Package database provides SQLite connectivity for the shared Homepulse
// readings store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent multi-process access
//   - Schema migrations (additive-only, embedded in the binary)
//   - Connection lifecycle and health checks
//   - Driver error classification (busy vs unique-constraint)
//
// Concurrency Model:
//
// Each collector runs as its own OS process and opens the same database
// file. WAL mode lets readers proceed during an in-flight write; competing
// writers block up to the configured busy timeout and then surface
// SQLITE_BUSY, which IsBusyError identifies so callers can retry with
// backoff. Unique-constraint violations are identified separately by
// IsUniqueConstraintError because retrying them can never succeed.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err // fatal: never ingest into an unverified schema
//	}
//
// Migration Strategy:
//
// Migrations are additive-only so older rows remain readable:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Each migration file has both .up.sql and .down.sql
package database
