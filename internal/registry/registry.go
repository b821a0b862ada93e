package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homepulse/homepulse-core/internal/reading"
	"github.com/homepulse/homepulse-core/internal/retry"
)

// File handling constants.
const (
	// filePermissions keeps the registry owner read/write. The document
	// is operator-editable, so it stays a plain file, not a database.
	filePermissions = 0600

	// dirPermissions is the permission mode for the registry directory.
	dirPermissions = 0750

	// lockSuffix is appended to the registry path for the lock file.
	lockSuffix = ".lock"

	// staleLockAge is how old a lock file may be before it is considered
	// abandoned by a crashed collector and broken. Normal read-modify-
	// write cycles hold the lock for milliseconds.
	staleLockAge = 30 * time.Second
)

// HistoryRewriter rewrites the display fields of historical readings.
// Implemented by reading.Store; injected so the registry can honour
// recursive renames without owning the readings schema.
type HistoryRewriter interface {
	RewriteLocation(ctx context.Context, deviceID, location string) (int64, error)
}

// Logger is the minimal logging interface the registry reports to.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Registry maps volatile vendor device identifiers to stable,
// human-editable names and locations.
//
// The backing store is a YAML document on disk, shared by every collector
// process. Each mutation is a scoped read-modify-write cycle guarded by a
// lock file: acquire, reload the document (picking up operator edits and
// other processes' writes), mutate, rewrite atomically via temp-file
// rename, release. Lock contention is retried through the shared backoff
// policy; the loser of a first-sight race re-reads the winner's entry
// instead of erroring.
//
// Thread Safety: safe for concurrent use; an in-process mutex serialises
// local callers, the lock file serialises across processes.
type Registry struct {
	path    string
	policy  *retry.Policy
	history HistoryRewriter
	logger  Logger

	mu sync.Mutex
}

// New creates a Registry over the given YAML document path.
// The file does not need to exist yet; it is created on first write.
//
// Parameters:
//   - path: Filesystem path of the registry document
//   - policy: Shared backoff policy for lock contention
//
// Returns:
//   - *Registry: Ready for use
//   - error: If the registry directory cannot be created
func New(path string, policy *retry.Policy) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	if policy == nil {
		policy = retry.New(retry.DefaultMaxAttempts, retry.DefaultBaseDelay)
	}
	return &Registry{path: path, policy: policy}, nil
}

// SetHistoryRewriter wires the readings store for recursive renames.
func (r *Registry) SetHistoryRewriter(history HistoryRewriter) {
	r.history = history
}

// SetLogger sets an optional logger.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// ResolveOrRegister returns the entry for deviceID, creating it on first
// sight.
//
// An existing entry has its LastSeen updated; an unseen device gets a new
// entry with the inferred name. Safe under concurrent callers from
// different collector processes: the whole read-modify-write cycle runs
// under the lock file, so near-simultaneous first sightings resolve to
// exactly one entry, with the race loser reading back the winner's entry.
//
// Parameters:
//   - ctx: Context for lock-acquisition backoff
//   - deviceID: Stable composite identity
//   - inferredName: Name to use on first sight (empty derives
//     "{location} {source_kind}")
//   - location: Display location for a new entry
//   - kind: Source ecosystem
//   - modelInfo: Free-form vendor model information
//
// Returns:
//   - *Entry: The resolved or newly created entry
//   - error: Lock exhaustion or document read/write failure
func (r *Registry) ResolveOrRegister(ctx context.Context, deviceID, inferredName, location string, kind reading.SourceKind, modelInfo string) (*Entry, error) {
	var resolved Entry

	err := r.withLockedDocument(ctx, func(doc document) (document, error) {
		now := time.Now().UTC()

		if entry, ok := doc[deviceID]; ok {
			entry.LastSeen = now
			doc[deviceID] = entry
			resolved = entry
			return doc, nil
		}

		if inferredName == "" {
			inferredName = InferName(location, kind)
		}
		entry := Entry{
			DeviceID:   deviceID,
			Name:       inferredName,
			Location:   location,
			SourceKind: kind,
			ModelInfo:  modelInfo,
			FirstSeen:  now,
			LastSeen:   now,
		}
		doc[deviceID] = entry
		resolved = entry

		if r.logger != nil {
			r.logger.Info("device auto-registered",
				"device_id", deviceID,
				"name", inferredName,
				"source_kind", kind,
			)
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return &resolved, nil
}

// SetName renames a device in the registry only. Idempotent: renaming to
// the current name is a no-op that still succeeds.
//
// Parameters:
//   - ctx: Context for lock-acquisition backoff
//   - deviceID: Device to rename
//   - name: New human-facing label
//
// Returns:
//   - error: ErrDeviceNotFound, ErrInvalidName, or a document failure
func (r *Registry) SetName(ctx context.Context, deviceID, name string) error {
	return r.AmendName(ctx, deviceID, name, false)
}

// AmendName renames a device, optionally rewriting history.
//
// With recursive=false this is identical to SetName. With recursive=true
// it additionally rewrites the display location of every historical
// reading for the device in one atomic bulk update - the explicit,
// operator-triggered exception to reading immutability. The number of
// rows affected is logged.
//
// Parameters:
//   - ctx: Context for lock-acquisition backoff and the bulk update
//   - deviceID: Device to rename
//   - name: New human-facing label
//   - recursive: Also rewrite historical readings
//
// Returns:
//   - error: ErrDeviceNotFound, ErrInvalidName, or a document/store failure
func (r *Registry) AmendName(ctx context.Context, deviceID, name string, recursive bool) error {
	if name == "" {
		return ErrInvalidName
	}

	err := r.withLockedDocument(ctx, func(doc document) (document, error) {
		entry, ok := doc[deviceID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		entry.Name = name
		doc[deviceID] = entry
		return doc, nil
	})
	if err != nil {
		return err
	}

	if r.logger != nil {
		r.logger.Info("device renamed", "device_id", deviceID, "name", name, "recursive", recursive)
	}

	if !recursive {
		return nil
	}
	if r.history == nil {
		return fmt.Errorf("registry: recursive rename requires a history rewriter")
	}

	affected, err := r.history.RewriteLocation(ctx, deviceID, name)
	if err != nil {
		return fmt.Errorf("rewriting reading history: %w", err)
	}
	if r.logger != nil {
		r.logger.Info("recursive rename applied to history",
			"device_id", deviceID,
			"rows_affected", affected,
		)
	}
	return nil
}

// Get returns a single entry by device id.
//
// Returns:
//   - *Entry: The entry, if present
//   - error: ErrDeviceNotFound or a document read failure
func (r *Registry) Get(ctx context.Context, deviceID string) (*Entry, error) {
	_ = ctx // reads need no lock: the document is replaced atomically

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	entry, ok := doc[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return &entry, nil
}

// List returns registry entries, optionally filtered by source kind,
// sorted by device id for stable output.
//
// Parameters:
//   - ctx: Unused; reads are lock-free
//   - kind: Filter ("" returns every entry)
//
// Returns:
//   - []Entry: Matching entries
//   - error: If the document cannot be read
func (r *Registry) List(ctx context.Context, kind reading.SourceKind) ([]Entry, error) {
	_ = ctx

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(doc))
	for _, entry := range doc {
		if kind != "" && entry.SourceKind != kind {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DeviceID < entries[j].DeviceID
	})
	return entries, nil
}

// LookupLocation implements reading.LocationResolver. It prefers the
// entry's location and falls back to its name, so renamed devices keep a
// meaningful display value. A missing entry or unreadable document
// returns false; location resolution then falls through to vendor
// metadata.
func (r *Registry) LookupLocation(deviceID string) (string, bool) {
	doc, err := r.load()
	if err != nil {
		return "", false
	}
	entry, ok := doc[deviceID]
	if !ok {
		return "", false
	}
	if entry.Location != "" {
		return entry.Location, true
	}
	if entry.Name != "" {
		return entry.Name, true
	}
	return "", false
}

// withLockedDocument runs one scoped read-modify-write cycle: acquire the
// lock file (with backoff), reload the document, apply mutate, rewrite
// atomically, release the lock on every path.
func (r *Registry) withLockedDocument(ctx context.Context, mutate func(document) (document, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.acquireLock(ctx); err != nil {
		return err
	}
	defer r.releaseLock()

	doc, err := r.load()
	if err != nil {
		return err
	}

	updated, err := mutate(doc)
	if err != nil {
		return err
	}

	return r.save(updated)
}

// acquireLock takes the lock file, retrying contention with backoff.
// A lock older than staleLockAge is treated as abandoned by a crashed
// collector and broken, so a dead process cannot wedge the registry.
func (r *Registry) acquireLock(ctx context.Context) error {
	lockPath := r.path + lockSuffix

	return r.policy.Do(ctx, func(_ context.Context) error {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
		if err == nil {
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating registry lock: %w", err)
		}

		// Lock exists: break it if stale, otherwise report contention.
		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > staleLockAge {
				if r.logger != nil {
					r.logger.Warn("breaking stale registry lock", "path", lockPath)
				}
				_ = os.Remove(lockPath) //nolint:errcheck // Next attempt recreates or re-detects
			}
		}
		return errLockHeld
	}, func(err error) retry.Classification {
		if err == errLockHeld {
			return retry.Transient
		}
		return retry.Permanent
	})
}

// releaseLock removes the lock file.
func (r *Registry) releaseLock() {
	_ = os.Remove(r.path + lockSuffix) //nolint:errcheck // Stale-lock breaking covers failure
}

// load reads and parses the registry document. A missing file is an
// empty registry, not an error.
func (r *Registry) load() (document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return nil, fmt.Errorf("reading registry document: %w", err)
	}

	doc := document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry document: %w", err)
	}

	// Backfill the key into entries so hand-added entries without a
	// device_id field round-trip correctly.
	for id, entry := range doc {
		if entry.DeviceID == "" {
			entry.DeviceID = id
			doc[id] = entry
		}
	}
	return doc, nil
}

// save writes the document atomically: marshal to a temp file in the
// same directory, then rename over the registry path.
func (r *Registry) save(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling registry document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating registry temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck // Error path cleanup
		os.Remove(tmpPath)    //nolint:errcheck // Error path cleanup
		return fmt.Errorf("writing registry temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Error path cleanup
		return fmt.Errorf("closing registry temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Error path cleanup
		return fmt.Errorf("setting registry permissions: %w", err)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Error path cleanup
		return fmt.Errorf("replacing registry document: %w", err)
	}
	return nil
}
