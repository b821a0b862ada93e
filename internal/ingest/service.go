package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homepulse/homepulse-core/internal/reading"
	"github.com/homepulse/homepulse-core/internal/registry"
)

// DeviceRegistrar resolves or creates the registry entry for a device.
// Implemented by registry.Registry.
type DeviceRegistrar interface {
	ResolveOrRegister(ctx context.Context, deviceID, inferredName, location string, kind reading.SourceKind, modelInfo string) (*registry.Entry, error)
}

// ReadingStore persists canonical readings. Implemented by reading.Store.
type ReadingStore interface {
	Insert(ctx context.Context, r *reading.Reading) (reading.InsertOutcome, error)
}

// Mirror receives committed readings for time-series dashboarding.
// Implemented by influxdb.Client. Mirror writes are best-effort and
// non-blocking; a mirror failure never affects the stored row.
type Mirror interface {
	WriteReading(deviceID, sourceKind, location string, timestamp time.Time, fields map[string]interface{}, anomalous bool)
}

// Logger is the minimal logging interface the service reports to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Result describes what happened to one ingested payload.
type Result struct {
	// CorrelationID ties log lines and acks for one payload together.
	CorrelationID string `json:"correlation_id"`

	// DeviceID is the composed stable identity.
	DeviceID string `json:"device_id"`

	// Outcome is "inserted" or "duplicate_skipped".
	Outcome string `json:"outcome"`

	// Anomalous reports whether the primary value was flagged out of range.
	// Anomalous readings are stored, not rejected.
	Anomalous bool `json:"anomalous"`

	// Registered reports that this payload was the device's first sight
	// and a registry entry was auto-created for it.
	Registered bool `json:"registered,omitempty"`

	// FieldErrors lists secondary fields that were nulled for carrying
	// physically impossible values.
	FieldErrors []string `json:"field_errors,omitempty"`
}

// Service runs the full ingestion pipeline for one raw vendor payload:
// normalize, resolve-or-register, validate, store, mirror.
//
// A single Service is shared by every transport (in-process collectors,
// the MQTT bridge) and is safe for concurrent use.
type Service struct {
	normalizer *reading.Normalizer
	registrar  DeviceRegistrar
	store      ReadingStore
	mirror     Mirror
	logger     Logger
}

// NewService creates a Service.
//
// Parameters:
//   - normalizer: Payload-to-Reading converter
//   - registrar: Registry for device auto-registration
//   - store: Readings persistence
//
// Returns:
//   - *Service: Ready for use; mirror and logger are optional extras
func NewService(normalizer *reading.Normalizer, registrar DeviceRegistrar, store ReadingStore) *Service {
	return &Service{
		normalizer: normalizer,
		registrar:  registrar,
		store:      store,
	}
}

// SetMirror wires the optional time-series mirror.
func (s *Service) SetMirror(mirror Mirror) {
	s.mirror = mirror
}

// SetLogger sets an optional logger.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Ingest processes one raw vendor payload end to end.
//
// Pipeline:
//  1. Normalize: unit conversion, collecting-clock timestamp, device-id
//     composition, location resolution.
//  2. Resolve-or-register: the device gets a registry entry on first
//     sight; LastSeen is updated on every cycle.
//  3. Validate: out-of-range primary values are flagged anomalous and
//     still stored; impossible secondary values are nulled and reported.
//  4. Insert: retried on lock contention; a duplicate (device_id,
//     timestamp) is a designed no-op.
//  5. Mirror: the committed reading is forwarded to the optional
//     time-series mirror.
//
// A normalization or registry failure aborts the pipeline; validation
// findings never do.
//
// Parameters:
//   - ctx: Cancels retries and registry lock waits
//   - kind: Source ecosystem the payload came from
//   - meta: Per-device collector context
//   - raw: Decoded vendor payload
//
// Returns:
//   - *Result: Outcome summary for acks and logging
//   - error: Normalization, registry, or storage failure
func (s *Service) Ingest(ctx context.Context, kind reading.SourceKind, meta reading.DeviceMetadata, raw reading.RawPayload) (*Result, error) {
	correlationID := uuid.New().String()

	r, err := s.normalizer.Normalize(raw, kind, meta)
	if err != nil {
		s.logWarn("payload rejected during normalization",
			"correlation_id", correlationID,
			"source_kind", kind,
			"vendor_id", meta.VendorID,
			"error", err,
		)
		return nil, fmt.Errorf("normalizing payload: %w", err)
	}

	entry, err := s.registrar.ResolveOrRegister(ctx, r.DeviceID, "", r.Location, kind, meta.Model)
	if err != nil {
		return nil, fmt.Errorf("resolving device %s: %w", r.DeviceID, err)
	}
	// A registry entry that already carries an operator-set location wins
	// over whatever the normalizer resolved on a first-sight race.
	if entry.Location != "" {
		r.Location = entry.Location
	}
	// First sight leaves FirstSeen == LastSeen; every later cycle advances
	// LastSeen past it.
	registered := !entry.FirstSeen.IsZero() && entry.FirstSeen.Equal(entry.LastSeen)

	fieldErrs := reading.Validate(r)
	for _, ferr := range fieldErrs {
		s.logWarn("secondary field nulled",
			"correlation_id", correlationID,
			"device_id", r.DeviceID,
			"error", ferr,
		)
	}
	if r.IsAnomalous {
		s.logWarn("anomalous reading flagged",
			"correlation_id", correlationID,
			"device_id", r.DeviceID,
			"value_celsius", r.ValueCelsius,
		)
	}

	outcome, err := s.store.Insert(ctx, r)
	if err != nil {
		s.logError("reading insert failed",
			"correlation_id", correlationID,
			"device_id", r.DeviceID,
			"error", err,
		)
		return nil, fmt.Errorf("storing reading for %s: %w", r.DeviceID, err)
	}

	if outcome == reading.Inserted && s.mirror != nil {
		s.mirror.WriteReading(r.DeviceID, string(r.SourceKind), r.Location,
			r.Timestamp, mirrorFields(r), r.IsAnomalous)
	}

	s.logDebug("reading processed",
		"correlation_id", correlationID,
		"device_id", r.DeviceID,
		"outcome", outcome.String(),
		"anomalous", r.IsAnomalous,
	)

	return &Result{
		CorrelationID: correlationID,
		DeviceID:      r.DeviceID,
		Outcome:       outcome.String(),
		Anomalous:     r.IsAnomalous,
		Registered:    registered,
		FieldErrors:   errorStrings(fieldErrs),
	}, nil
}

// mirrorFields builds the numeric field set forwarded to the mirror.
// Nil secondaries are omitted rather than sent as zeroes.
func mirrorFields(r *reading.Reading) map[string]interface{} {
	fields := map[string]interface{}{
		"value_celsius": r.ValueCelsius,
	}
	addField := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}
	addField("humidity_percent", r.HumidityPercent)
	addField("battery_percent", r.BatteryPercent)
	addField("signal_strength", r.SignalStrength)
	addField("pm25_ug_m3", r.PM25)
	addField("voc_ppb", r.VOCPPB)
	addField("co_ppm", r.COPPM)
	addField("air_quality_index", r.AirQualityIndex)
	return fields
}

// errorStrings flattens validation errors for the ack payload.
func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// IsRejection reports whether an Ingest error means the payload itself
// was unusable (as opposed to a transient storage or registry failure).
// Collectors drop rejected payloads and keep their cycle going.
func IsRejection(err error) bool {
	return errors.Is(err, reading.ErrMissingMeasurement) ||
		errors.Is(err, reading.ErrUnknownSourceKind) ||
		errors.Is(err, reading.ErrMissingVendorID)
}

func (s *Service) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Service) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
