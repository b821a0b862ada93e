// Package registry provides the persistent device identity registry for
// Homepulse Core.
//
// The registry maps volatile vendor device identifiers to stable,
// human-editable names and locations. It exclusively owns name/location
// resolution; readings hold only a denormalised location copy taken at
// insertion time.
//
// # Backing Store
//
// Entries live in a YAML document keyed by device id. The file is meant
// to be edited by operators directly: edits take effect on the next read,
// with no restart and no schema version field. Conflicting concurrent
// edits resolve last-write-wins - an accepted limitation, deliberately
// not "fixed" with a lock server.
//
// # Cross-Process Safety
//
// Mutations run as scoped read-modify-write cycles guarded by a lock
// file next to the document. Contention is retried through the shared
// retry policy; locks abandoned by crashed collectors are broken after a
// staleness threshold. Writes land via temp-file rename, so readers
// always see a complete document.
//
// # Coupling
//
// Readings and registry entries share only the device_id string; there is
// no foreign key, so devices can produce readings before registration
// exists. The one write-path into readings history is the recursive
// rename, delegated to an injected HistoryRewriter.
package registry
