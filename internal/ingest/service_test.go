package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/homepulse/homepulse-core/internal/reading"
	"github.com/homepulse/homepulse-core/internal/registry"
)

// fakeRegistrar records resolve calls and returns a canned entry.
type fakeRegistrar struct {
	mu      sync.Mutex
	calls   int
	entry   *registry.Entry
	lastID  string
	lastLoc string
}

func (f *fakeRegistrar) ResolveOrRegister(_ context.Context, deviceID, inferredName, location string, kind reading.SourceKind, modelInfo string) (*registry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastID = deviceID
	f.lastLoc = location
	if f.entry != nil {
		return f.entry, nil
	}
	return &registry.Entry{
		DeviceID:   deviceID,
		Name:       registry.InferName(location, kind),
		Location:   location,
		SourceKind: kind,
	}, nil
}

// fakeStore keeps inserted readings in memory and deduplicates on
// (device_id, timestamp) like the real store's unique index.
type fakeStore struct {
	mu       sync.Mutex
	readings []*reading.Reading
	seen     map[string]bool
}

func (f *fakeStore) Insert(_ context.Context, r *reading.Reading) (reading.InsertOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	key := r.DeviceID + "|" + r.Timestamp.Format(time.RFC3339)
	if f.seen[key] {
		return reading.DuplicateSkipped, nil
	}
	f.seen[key] = true
	f.readings = append(f.readings, r)
	return reading.Inserted, nil
}

// fakeMirror records mirrored readings.
type fakeMirror struct {
	mu     sync.Mutex
	writes int
}

func (f *fakeMirror) WriteReading(_, _, _ string, _ time.Time, _ map[string]interface{}, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
}

func (f *fakeMirror) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func newTestService(store *fakeStore, registrar *fakeRegistrar) *Service {
	normalizer := reading.NewNormalizer(nil)
	normalizer.SetClock(func() time.Time {
		return time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	})
	return NewService(normalizer, registrar, store)
}

func TestIngest_StoresAndRegisters(t *testing.T) {
	store := &fakeStore{}
	registrar := &fakeRegistrar{}
	svc := newTestService(store, registrar)

	result, err := svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc", Location: "hallway"},
		reading.RawPayload{"temperature": 21.5, "battery": 90.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Outcome != "inserted" {
		t.Errorf("Outcome = %q, want %q", result.Outcome, "inserted")
	}
	if result.DeviceID != "motion-sensor:aa:bb:cc" {
		t.Errorf("DeviceID = %q, want %q", result.DeviceID, "motion-sensor:aa:bb:cc")
	}
	if result.CorrelationID == "" {
		t.Error("CorrelationID should not be empty")
	}
	if result.Anomalous {
		t.Error("Anomalous = true for an in-range reading")
	}

	if registrar.calls != 1 {
		t.Errorf("registrar calls = %d, want 1", registrar.calls)
	}
	if registrar.lastID != "motion-sensor:aa:bb:cc" {
		t.Errorf("registered device id = %q", registrar.lastID)
	}

	if len(store.readings) != 1 {
		t.Fatalf("stored readings = %d, want 1", len(store.readings))
	}
	if store.readings[0].Location != "hallway" {
		t.Errorf("stored location = %q, want %q", store.readings[0].Location, "hallway")
	}
}

func TestIngest_DuplicateIsNoOp(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})

	meta := reading.DeviceMetadata{VendorID: "th-1"}
	raw := reading.RawPayload{"ambient_temperature_c": 20.0}

	first, err := svc.Ingest(context.Background(), reading.SourceCloudThermostat, meta, raw)
	if err != nil {
		t.Fatalf("Ingest() first error = %v", err)
	}
	second, err := svc.Ingest(context.Background(), reading.SourceCloudThermostat, meta, raw)
	if err != nil {
		t.Fatalf("Ingest() second error = %v", err)
	}

	if first.Outcome != "inserted" {
		t.Errorf("first Outcome = %q, want inserted", first.Outcome)
	}
	if second.Outcome != "duplicate_skipped" {
		t.Errorf("second Outcome = %q, want duplicate_skipped", second.Outcome)
	}
	if len(store.readings) != 1 {
		t.Errorf("stored readings = %d, want 1", len(store.readings))
	}
}

func TestIngest_AnomalousStillStored(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})

	result, err := svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc"},
		reading.RawPayload{"temperature": 45.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if !result.Anomalous {
		t.Error("Anomalous = false for 45°C on an indoor sensor")
	}
	if result.Outcome != "inserted" {
		t.Errorf("Outcome = %q, anomalous readings must still be stored", result.Outcome)
	}
	if len(store.readings) != 1 || !store.readings[0].IsAnomalous {
		t.Error("anomalous reading should be stored with the flag set")
	}
}

func TestIngest_ImpossibleSecondaryNulled(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})

	result, err := svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc"},
		reading.RawPayload{"temperature": 21.0, "humidity": 140.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(result.FieldErrors) != 1 {
		t.Fatalf("FieldErrors = %v, want one entry", result.FieldErrors)
	}
	if store.readings[0].HumidityPercent != nil {
		t.Error("impossible humidity should be nulled before storage")
	}
}

func TestIngest_RejectsMissingMeasurement(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})

	_, err := svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc"},
		reading.RawPayload{"battery": 50.0},
	)
	if err == nil {
		t.Fatal("Ingest() expected error for payload with no temperature")
	}
	if !IsRejection(err) {
		t.Errorf("IsRejection(%v) = false, want true", err)
	}
	if len(store.readings) != 0 {
		t.Errorf("stored readings = %d, want 0", len(store.readings))
	}
}

func TestIngest_RegistryLocationWins(t *testing.T) {
	store := &fakeStore{}
	registrar := &fakeRegistrar{
		entry: &registry.Entry{
			DeviceID:   "motion-sensor:aa:bb:cc",
			Name:       "landing motion-sensor",
			Location:   "landing",
			SourceKind: reading.SourceMotionSensor,
		},
	}
	svc := newTestService(store, registrar)

	_, err := svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc", Location: "vendor-room"},
		reading.RawPayload{"temperature": 19.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if store.readings[0].Location != "landing" {
		t.Errorf("stored location = %q, want registry location %q",
			store.readings[0].Location, "landing")
	}
}

func TestIngest_FirstSightMarksRegistered(t *testing.T) {
	firstSeen := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	registrar := &fakeRegistrar{
		entry: &registry.Entry{
			DeviceID:   "motion-sensor:aa:bb:cc",
			Name:       "hallway motion-sensor",
			SourceKind: reading.SourceMotionSensor,
			FirstSeen:  firstSeen,
			LastSeen:   firstSeen,
		},
	}
	svc := newTestService(&fakeStore{}, registrar)

	result, err := svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc"},
		reading.RawPayload{"temperature": 21.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !result.Registered {
		t.Error("Registered = false on first sight (FirstSeen == LastSeen)")
	}

	// A later sighting has an advanced LastSeen and is not a registration.
	registrar.entry.LastSeen = firstSeen.Add(time.Minute)
	result, err = svc.Ingest(context.Background(), reading.SourceMotionSensor,
		reading.DeviceMetadata{VendorID: "aa:bb:cc"},
		reading.RawPayload{"temperature": 21.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Registered {
		t.Error("Registered = true for a previously seen device")
	}
}

func TestIngest_MirrorReceivesInsertedOnly(t *testing.T) {
	store := &fakeStore{}
	mirror := &fakeMirror{}
	svc := newTestService(store, &fakeRegistrar{})
	svc.SetMirror(mirror)

	meta := reading.DeviceMetadata{VendorID: "aqm-1"}
	raw := reading.RawPayload{"temp": 22.0, "pm25": 8.0}

	if _, err := svc.Ingest(context.Background(), reading.SourceCloudAirQuality, meta, raw); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	// Same collecting-clock second: duplicate, must not be mirrored again.
	if _, err := svc.Ingest(context.Background(), reading.SourceCloudAirQuality, meta, raw); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if mirror.count() != 1 {
		t.Errorf("mirror writes = %d, want 1", mirror.count())
	}
}

func TestIngest_ThermostatFahrenheitConversion(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})

	_, err := svc.Ingest(context.Background(), reading.SourceCloudThermostat,
		reading.DeviceMetadata{VendorID: "th-2"},
		reading.RawPayload{"ambient_temperature_f": 68.0},
	)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	got := store.readings[0].ValueCelsius
	if got < 19.99 || got > 20.01 {
		t.Errorf("ValueCelsius = %v, want 20.0", got)
	}
}
