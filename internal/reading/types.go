package reading

import "time"

// Reading is one canonical measurement record. A Reading is immutable
// once committed to the store; the only mutation path is the registry's
// operator-triggered recursive rename, which rewrites the denormalised
// location column of historical rows.
type Reading struct {
	// Identity: "<source_kind>:<vendor_unique_id>", globally unique
	// across all sources.
	DeviceID string `json:"device_id"`

	// Timestamp is when the measurement was collected, carrying the
	// collecting system's timezone offset. Distinct from InsertedAt.
	Timestamp time.Time `json:"timestamp"`

	// ValueCelsius is the primary temperature measurement (required).
	ValueCelsius float64 `json:"value_celsius"`

	// Location is the display location resolved at insertion time.
	Location string `json:"location"`

	// SourceKind tags which device ecosystem produced the reading.
	SourceKind SourceKind `json:"source_kind"`

	// IsAnomalous is set by the validator when the primary value falls
	// outside its expected range. It never blocks storage.
	IsAnomalous bool `json:"is_anomalous"`

	// Secondary fields: nullable and source-dependent. Absent vendor
	// values stay nil, never sentinels.
	HumidityPercent *float64 `json:"humidity_percent,omitempty"`
	BatteryPercent  *float64 `json:"battery_percent,omitempty"`
	SignalStrength  *float64 `json:"signal_strength,omitempty"`
	PM25            *float64 `json:"pm25_ug_m3,omitempty"`
	VOCPPB          *float64 `json:"voc_ppb,omitempty"`
	COPPM           *float64 `json:"co_ppm,omitempty"`
	AirQualityIndex *float64 `json:"air_quality_index,omitempty"`
	ThermostatMode  *string  `json:"thermostat_mode,omitempty"`
	ThermostatState *string  `json:"thermostat_state,omitempty"`

	// VendorUpdatedAt is the vendor's own "last updated" metadata.
	// Advisory only; the canonical Timestamp is the collecting clock.
	VendorUpdatedAt *time.Time `json:"vendor_updated_at,omitempty"`

	// RawPayload is a snapshot of the vendor payload for reprocessing.
	RawPayload RawPayload `json:"raw_payload,omitempty"`

	// InsertedAt is store-assigned at commit, monotonic with insertion
	// order, not user-settable.
	InsertedAt time.Time `json:"inserted_at"`
}

// RawPayload holds a vendor payload as decoded JSON.
type RawPayload map[string]any

// DeviceMetadata carries the per-device context a collector supplies
// alongside a raw payload.
type DeviceMetadata struct {
	// VendorID is the vendor's own device identifier (volatile; the
	// stable identity is the composed DeviceID).
	VendorID string

	// Location is the vendor-supplied location, used when the registry
	// has no entry for the device.
	Location string

	// Model is free-form vendor model information.
	Model string

	// VendorUpdatedAt is the vendor's "last updated" timestamp, if any.
	VendorUpdatedAt *time.Time
}

// SourceKind identifies the device ecosystem a reading originated from.
// It is a closed set: new sources require adding a constant and a
// validation range, not subclassing.
type SourceKind string

// SourceKind constants.
const (
	SourceMotionSensor    SourceKind = "motion-sensor"
	SourceCloudAirQuality SourceKind = "cloud-air-quality-monitor"
	SourceCloudThermostat SourceKind = "cloud-thermostat"
)

// AllSourceKinds returns all valid source kind values.
func AllSourceKinds() []SourceKind {
	return []SourceKind{
		SourceMotionSensor, SourceCloudAirQuality, SourceCloudThermostat,
	}
}

// Valid reports whether k is a recognised source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceMotionSensor, SourceCloudAirQuality, SourceCloudThermostat:
		return true
	default:
		return false
	}
}

// ComposeDeviceID builds the stable composite identifier from a source
// kind and the vendor's own device id.
func ComposeDeviceID(kind SourceKind, vendorID string) string {
	return string(kind) + ":" + vendorID
}

// InsertOutcome is the result of a store insert attempt.
type InsertOutcome int

// Insert outcomes. DuplicateSkipped is a designed no-op, not a failure.
const (
	Inserted InsertOutcome = iota
	DuplicateSkipped
)

// String returns a human-readable outcome name for logging.
func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case DuplicateSkipped:
		return "duplicate_skipped"
	default:
		return "unknown"
	}
}
