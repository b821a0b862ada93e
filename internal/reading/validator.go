package reading

import "fmt"

// TemperatureRange is the expected primary-value band for a source class.
// Boundary values are within range.
type TemperatureRange struct {
	MinCelsius float64
	MaxCelsius float64
}

// Validation range tables keyed by source kind. Indoor-class sources use
// the narrow band; the air-quality monitor may sit near an open window or
// outdoors, so it gets the wide ambient band.
var temperatureRanges = map[SourceKind]TemperatureRange{
	SourceMotionSensor:    {MinCelsius: 0, MaxCelsius: 40},
	SourceCloudThermostat: {MinCelsius: 0, MaxCelsius: 40},
	SourceCloudAirQuality: {MinCelsius: -40, MaxCelsius: 50},
}

// Secondary field bounds. Values outside these are impossible rather than
// unusual, so the field is nulled instead of stored.
const (
	humidityMin = 0.0
	humidityMax = 100.0
	batteryMin  = 0.0
	batteryMax  = 100.0
	aqiMin      = 0.0
	aqiMax      = 100.0
)

// RangeFor returns the validation range for a source kind.
// The second return is false for unknown kinds.
func RangeFor(kind SourceKind) (TemperatureRange, bool) {
	r, ok := temperatureRanges[kind]
	return r, ok
}

// Validate range-checks a canonical reading in place.
//
// A primary value outside its source's range sets IsAnomalous - the
// reading is still returned for storage, never discarded. Anomalies are a
// data-quality signal, not a validity gate.
//
// Secondary fields that violate their bounds (humidity 0-100, battery
// 0-100, air-quality index 0-100) are nulled rather than stored as
// impossible values, and reported as field errors for logging. They do
// not block storage of the primary measurement.
//
// Parameters:
//   - r: Reading to check; mutated in place (flag set, bad fields nulled)
//
// Returns:
//   - []error: Secondary-field violations for the caller to log (may be empty)
func Validate(r *Reading) []error {
	var errs []error

	if bounds, ok := temperatureRanges[r.SourceKind]; ok {
		if r.ValueCelsius < bounds.MinCelsius || r.ValueCelsius > bounds.MaxCelsius {
			r.IsAnomalous = true
		}
	}

	if r.HumidityPercent != nil && outOfBounds(*r.HumidityPercent, humidityMin, humidityMax) {
		errs = append(errs, fmt.Errorf("%s: humidity %.1f%% outside [%g, %g], dropped",
			r.DeviceID, *r.HumidityPercent, humidityMin, humidityMax))
		r.HumidityPercent = nil
	}

	if r.BatteryPercent != nil && outOfBounds(*r.BatteryPercent, batteryMin, batteryMax) {
		errs = append(errs, fmt.Errorf("%s: battery %.1f%% outside [%g, %g], dropped",
			r.DeviceID, *r.BatteryPercent, batteryMin, batteryMax))
		r.BatteryPercent = nil
	}

	if r.AirQualityIndex != nil && outOfBounds(*r.AirQualityIndex, aqiMin, aqiMax) {
		errs = append(errs, fmt.Errorf("%s: air quality index %.1f outside [%g, %g], dropped",
			r.DeviceID, *r.AirQualityIndex, aqiMin, aqiMax))
		r.AirQualityIndex = nil
	}

	return errs
}

// outOfBounds reports whether v falls outside [min, max].
// Boundary values are in bounds.
func outOfBounds(v, min, max float64) bool {
	return v < min || v > max
}
