package reading

import (
	"fmt"
	"time"
)

// fahrenheitSources lists payload temperature keys reported in Fahrenheit.
// The cloud thermostat API reports ambient temperature in °F; everything
// else is already Celsius.
const (
	fahrenheitFreezing = 32.0
	fahrenheitRatio    = 5.0 / 9.0
)

// fallbackIDFragment is how many trailing characters of the vendor id are
// embedded in the deterministic fallback location.
const fallbackIDFragment = 6

// LocationResolver looks up the display location for a device.
// Implemented by the device registry; the normalizer treats it as the
// first choice before vendor metadata and the deterministic fallback.
type LocationResolver interface {
	LookupLocation(deviceID string) (string, bool)
}

// Normalizer converts raw vendor payloads into canonical Readings.
//
// The zero value is not useful; construct with NewNormalizer. A single
// Normalizer is safe for concurrent use.
type Normalizer struct {
	// clock supplies the canonical measurement timestamp (the collecting
	// system's clock, never the vendor's "last updated" metadata).
	clock func() time.Time

	resolver LocationResolver
}

// NewNormalizer creates a Normalizer.
//
// Parameters:
//   - resolver: Registry-backed location lookup (nil disables the lookup
//     and falls straight through to vendor metadata)
//
// Returns:
//   - *Normalizer: Ready for use with the real system clock
func NewNormalizer(resolver LocationResolver) *Normalizer {
	return &Normalizer{
		clock:    time.Now,
		resolver: resolver,
	}
}

// SetClock replaces the timestamp source. Intended for tests.
func (n *Normalizer) SetClock(clock func() time.Time) {
	if clock != nil {
		n.clock = clock
	}
}

// Normalize converts a raw vendor payload plus device metadata into a
// canonical Reading.
//
// Responsibilities:
//   - unit conversion (vendor-native units to Celsius / SI)
//   - timestamp generation from the collecting system's clock
//   - device-id composition ("<source_kind>:<vendor_unique_id>")
//   - location resolution (registry, then vendor metadata, then a
//     deterministic fallback embedding a fragment of the device id)
//
// Partially-populated payloads are tolerated: any secondary field absent
// from the payload stays nil. A payload with no parseable primary
// temperature is rejected with ErrMissingMeasurement and no Reading is
// produced.
//
// Parameters:
//   - raw: Decoded vendor payload
//   - kind: Which ecosystem produced the payload
//   - meta: Per-device metadata from the collector
//
// Returns:
//   - *Reading: Canonical record ready for validation and storage
//   - error: ErrUnknownSourceKind, ErrMissingVendorID, or ErrMissingMeasurement
func (n *Normalizer) Normalize(raw RawPayload, kind SourceKind, meta DeviceMetadata) (*Reading, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceKind, kind)
	}
	if meta.VendorID == "" {
		return nil, ErrMissingVendorID
	}

	deviceID := ComposeDeviceID(kind, meta.VendorID)

	value, ok := primaryCelsius(raw, kind)
	if !ok {
		return nil, fmt.Errorf("%w: device %s", ErrMissingMeasurement, deviceID)
	}

	r := &Reading{
		DeviceID:        deviceID,
		Timestamp:       n.clock(),
		ValueCelsius:    value,
		Location:        n.resolveLocation(deviceID, meta),
		SourceKind:      kind,
		VendorUpdatedAt: meta.VendorUpdatedAt,
		RawPayload:      raw,
	}

	n.applySecondaryFields(r, raw, kind)

	return r, nil
}

// primaryCelsius extracts the primary temperature in Celsius, converting
// from the vendor's native unit where needed.
func primaryCelsius(raw RawPayload, kind SourceKind) (float64, bool) {
	switch kind {
	case SourceMotionSensor:
		return numberField(raw, "temperature")
	case SourceCloudAirQuality:
		if v, ok := numberField(raw, "temp"); ok {
			return v, true
		}
		return numberField(raw, "temperature")
	case SourceCloudThermostat:
		// Thermostat cloud API reports ambient temperature in Fahrenheit.
		if f, ok := numberField(raw, "ambient_temperature_f"); ok {
			return fahrenheitToCelsius(f), true
		}
		return numberField(raw, "ambient_temperature_c")
	default:
		return 0, false
	}
}

// applySecondaryFields fills the nullable source-dependent fields present
// in the payload. Missing fields are left nil.
func (n *Normalizer) applySecondaryFields(r *Reading, raw RawPayload, kind SourceKind) {
	switch kind {
	case SourceMotionSensor:
		r.HumidityPercent = optionalNumber(raw, "humidity")
		r.BatteryPercent = optionalNumber(raw, "battery")
		r.SignalStrength = optionalNumber(raw, "signal")
	case SourceCloudAirQuality:
		r.HumidityPercent = optionalNumber(raw, "humid", "humidity")
		r.PM25 = optionalNumber(raw, "pm25")
		r.VOCPPB = optionalNumber(raw, "voc")
		r.COPPM = optionalNumber(raw, "co")
		r.AirQualityIndex = optionalNumber(raw, "score", "aqi")
	case SourceCloudThermostat:
		r.HumidityPercent = optionalNumber(raw, "humidity")
		r.SignalStrength = optionalNumber(raw, "signal")
		r.ThermostatMode = optionalString(raw, "hvac_mode")
		r.ThermostatState = optionalString(raw, "hvac_state")
	}
}

// resolveLocation resolves the display location in priority order:
// registry entry, vendor-supplied metadata, deterministic fallback.
func (n *Normalizer) resolveLocation(deviceID string, meta DeviceMetadata) string {
	if n.resolver != nil {
		if loc, ok := n.resolver.LookupLocation(deviceID); ok && loc != "" {
			return loc
		}
	}
	if meta.Location != "" {
		return meta.Location
	}
	return FallbackLocation(meta.VendorID)
}

// FallbackLocation builds the deterministic location used when neither
// the registry nor the vendor supplies one. It embeds a trailing fragment
// of the vendor id so distinct unplaced devices stay distinguishable.
func FallbackLocation(vendorID string) string {
	fragment := vendorID
	if len(fragment) > fallbackIDFragment {
		fragment = fragment[len(fragment)-fallbackIDFragment:]
	}
	return "unassigned-" + fragment
}

// fahrenheitToCelsius converts °F to °C.
func fahrenheitToCelsius(f float64) float64 {
	return (f - fahrenheitFreezing) * fahrenheitRatio
}

// numberField extracts a numeric payload value, accepting the JSON types
// vendors actually send (float64, int, json.Number-style strings are not
// accepted; cloud APIs send numbers).
func numberField(raw RawPayload, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case int:
			return float64(val), true
		case int64:
			return float64(val), true
		}
	}
	return 0, false
}

// optionalNumber returns a pointer to the first present numeric value, or
// nil when every key is absent.
func optionalNumber(raw RawPayload, keys ...string) *float64 {
	if v, ok := numberField(raw, keys...); ok {
		return &v
	}
	return nil
}

// optionalString returns a pointer to a non-empty string value, or nil.
func optionalString(raw RawPayload, key string) *string {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s != "" {
		return &s
	}
	return nil
}
