package registry

import (
	"time"

	"github.com/homepulse/homepulse-core/internal/reading"
)

// Entry is the persistent identity record for one physical device.
//
// Entries live in a human-editable YAML document keyed by device id.
// Operator edits to the file take effect on the next registry read; no
// restart is required. Concurrent edits resolve last-write-wins, which is
// an accepted, documented limitation of the file-based registry.
type Entry struct {
	// DeviceID matches the reading identity format
	// "<source_kind>:<vendor_unique_id>". It is also the document key;
	// the field is kept so an Entry is self-describing outside the map.
	DeviceID string `yaml:"device_id" json:"device_id"`

	// Name is the human-facing label. Auto-inferred at first sight as
	// "{location} {source_kind}", freely editable thereafter.
	Name string `yaml:"name" json:"name"`

	// Location is the display location for the device.
	Location string `yaml:"location" json:"location"`

	// SourceKind is the ecosystem the device belongs to.
	SourceKind reading.SourceKind `yaml:"source_kind" json:"source_kind"`

	// ModelInfo is free-form vendor model information.
	ModelInfo string `yaml:"model_info,omitempty" json:"model_info,omitempty"`

	// FirstSeen is when the device first produced a reading.
	FirstSeen time.Time `yaml:"first_seen" json:"first_seen"`

	// LastSeen is updated on every reading from the device.
	LastSeen time.Time `yaml:"last_seen" json:"last_seen"`
}

// IsActive reports whether the device has reported within the staleness
// window. Activity is derived from LastSeen, never stored.
func (e Entry) IsActive(window time.Duration, now time.Time) bool {
	if window <= 0 {
		return true
	}
	return now.Sub(e.LastSeen) <= window
}

// InferName builds the auto-inferred display name used when a device is
// first seen: "{location} {source_kind}".
func InferName(location string, kind reading.SourceKind) string {
	return location + " " + string(kind)
}

// document is the on-disk registry shape: device id to entry.
type document map[string]Entry
