// Package reading provides the canonical measurement record and the
// pipeline stages that produce and persist it: normalization, validation,
// and the SQLite-backed store.
//
// # Pipeline
//
//	raw vendor payload + device metadata
//	        │
//	        ▼
//	Normalizer.Normalize     unit conversion, collecting-clock timestamp,
//	        │                device-id composition, location resolution
//	        ▼
//	Validate                 range checks; anomalies flagged, impossible
//	        │                secondary values nulled - nothing discarded
//	        ▼
//	Store.Insert             one transaction per reading; retried on lock
//	                         contention; duplicates skipped by design
//
// # Identity and Deduplication
//
// A reading's identity is (device_id, timestamp). The store's unique
// index is the sole deduplication mechanism: the same reading inserted
// twice yields exactly one row, and the second insert reports
// DuplicateSkipped rather than an error. Re-collecting an unchanged
// vendor value within the same clock second is therefore a safe no-op.
//
// # Immutability
//
// Committed readings are never updated or deleted, with one exception:
// Store.RewriteLocation, invoked by the registry's operator-triggered
// recursive rename, rewrites the denormalised location column for one
// device's history in a single atomic UPDATE.
package reading
