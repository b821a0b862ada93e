package reading

import "testing"

func ptr(v float64) *float64 { return &v }

func TestValidate_PrimaryRangeFlagging(t *testing.T) {
	tests := []struct {
		name          string
		kind          SourceKind
		value         float64
		wantAnomalous bool
	}{
		{"indoor nominal", SourceMotionSensor, 21.0, false},
		{"indoor lower boundary", SourceMotionSensor, 0.0, false},
		{"indoor upper boundary", SourceMotionSensor, 40.0, false},
		{"indoor just below", SourceMotionSensor, -0.01, true},
		{"indoor just above", SourceMotionSensor, 40.01, true},
		{"thermostat shares indoor band", SourceCloudThermostat, 45.0, true},
		{"thermostat boundary", SourceCloudThermostat, 40.0, false},
		{"ambient nominal", SourceCloudAirQuality, -10.0, false},
		{"ambient lower boundary", SourceCloudAirQuality, -40.0, false},
		{"ambient upper boundary", SourceCloudAirQuality, 50.0, false},
		{"ambient below", SourceCloudAirQuality, -40.5, true},
		{"ambient above", SourceCloudAirQuality, 50.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reading{
				DeviceID:     ComposeDeviceID(tt.kind, "x"),
				SourceKind:   tt.kind,
				ValueCelsius: tt.value,
			}
			errs := Validate(r)
			if r.IsAnomalous != tt.wantAnomalous {
				t.Errorf("IsAnomalous = %v, want %v", r.IsAnomalous, tt.wantAnomalous)
			}
			if len(errs) != 0 {
				t.Errorf("primary range check produced field errors: %v", errs)
			}
		})
	}
}

func TestValidate_ImpossibleSecondariesNulled(t *testing.T) {
	r := &Reading{
		DeviceID:        "motion-sensor:a",
		SourceKind:      SourceMotionSensor,
		ValueCelsius:    21.0,
		HumidityPercent: ptr(140.0),
		BatteryPercent:  ptr(-3.0),
	}

	errs := Validate(r)

	if r.HumidityPercent != nil {
		t.Error("humidity 140 should be nulled")
	}
	if r.BatteryPercent != nil {
		t.Error("battery -3 should be nulled")
	}
	if len(errs) != 2 {
		t.Errorf("field errors = %d, want 2: %v", len(errs), errs)
	}
	if r.IsAnomalous {
		t.Error("impossible secondaries must not flag the reading anomalous")
	}
}

func TestValidate_AQIBounds(t *testing.T) {
	r := &Reading{
		DeviceID:        "cloud-air-quality-monitor:a",
		SourceKind:      SourceCloudAirQuality,
		ValueCelsius:    20.0,
		AirQualityIndex: ptr(250.0),
	}

	errs := Validate(r)
	if r.AirQualityIndex != nil {
		t.Error("AQI 250 should be nulled")
	}
	if len(errs) != 1 {
		t.Errorf("field errors = %d, want 1", len(errs))
	}
}

func TestValidate_SecondaryBoundariesKept(t *testing.T) {
	r := &Reading{
		DeviceID:        "motion-sensor:a",
		SourceKind:      SourceMotionSensor,
		ValueCelsius:    21.0,
		HumidityPercent: ptr(0.0),
		BatteryPercent:  ptr(100.0),
	}

	errs := Validate(r)
	if len(errs) != 0 {
		t.Errorf("boundary secondaries should pass, got %v", errs)
	}
	if r.HumidityPercent == nil || r.BatteryPercent == nil {
		t.Error("boundary secondaries must be kept")
	}
}

func TestValidate_SignalStrengthUnbounded(t *testing.T) {
	// Signal strength is dBm and legitimately negative; it has no bounds.
	r := &Reading{
		DeviceID:       "motion-sensor:a",
		SourceKind:     SourceMotionSensor,
		ValueCelsius:   21.0,
		SignalStrength: ptr(-95.0),
	}

	if errs := Validate(r); len(errs) != 0 {
		t.Errorf("signal strength should not be bounds-checked, got %v", errs)
	}
	if r.SignalStrength == nil {
		t.Error("signal strength should survive validation")
	}
}

func TestRangeFor(t *testing.T) {
	r, ok := RangeFor(SourceCloudAirQuality)
	if !ok {
		t.Fatal("RangeFor(air quality) should succeed")
	}
	if r.MinCelsius != -40 || r.MaxCelsius != 50 {
		t.Errorf("ambient range = [%g, %g], want [-40, 50]", r.MinCelsius, r.MaxCelsius)
	}

	if _, ok := RangeFor(SourceKind("smart-plug")); ok {
		t.Error("RangeFor should fail for unknown kinds")
	}
}
