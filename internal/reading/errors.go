package reading

import "errors"

// Domain errors for the reading package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, reading.ErrMissingMeasurement) {
//	    // log and skip this device for the cycle
//	}
var (
	// ErrMissingMeasurement is returned by the normalizer when a vendor
	// payload lacks a parseable primary temperature. The caller logs and
	// continues with other devices rather than aborting the cycle.
	ErrMissingMeasurement = errors.New("reading: missing primary measurement")

	// ErrUnknownSourceKind is returned when a source kind is not one of
	// the recognised ecosystems.
	ErrUnknownSourceKind = errors.New("reading: unknown source kind")

	// ErrMissingVendorID is returned when device metadata has no vendor
	// device identifier, making identity composition impossible.
	ErrMissingVendorID = errors.New("reading: missing vendor device id")

	// ErrInvalidFilter is returned when query filter values are unusable.
	ErrInvalidFilter = errors.New("reading: invalid query filter")
)
