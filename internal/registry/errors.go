package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, registry.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device id has no registry entry.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrInvalidName is returned when a rename target name is empty.
	ErrInvalidName = errors.New("registry: invalid name")

	// errLockHeld marks lock-file contention with another collector
	// process. It is transient: the holder releases the lock when its
	// read-modify-write cycle completes.
	errLockHeld = errors.New("registry: lock held by another process")
)
