package reading

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/homepulse/homepulse-core/internal/infrastructure/database"
	"github.com/homepulse/homepulse-core/internal/retry"
)

// Query limit defaults, matching the API page sizes.
const (
	defaultQueryLimit = 500
	maxQueryLimit     = 5000
)

// errDuplicate marks a unique-constraint violation on (device_id,
// timestamp). It is classified permanent so the retry policy stops
// immediately, then translated to DuplicateSkipped - a designed no-op,
// never surfaced as an error.
var errDuplicate = errors.New("reading: duplicate (device_id, timestamp)")

// Logger is the minimal logging interface the store reports to.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Store persists canonical readings in the shared SQLite database.
//
// Every insert is one transaction wrapped by the shared retry policy:
// SQLITE_BUSY from a concurrent collector process is transient and
// retried with backoff; a unique-constraint violation is the designed
// deduplication signal and comes back as DuplicateSkipped.
//
// Thread Safety: safe for concurrent use from multiple goroutines.
type Store struct {
	db     *database.DB
	policy *retry.Policy
	logger Logger
}

// NewStore creates a Store over an open, migrated database.
//
// Parameters:
//   - db: Open database (Migrate must have succeeded)
//   - policy: Shared backoff policy for transient lock contention
//
// Returns:
//   - *Store: Ready for use
func NewStore(db *database.DB, policy *retry.Policy) *Store {
	if policy == nil {
		policy = retry.New(retry.DefaultMaxAttempts, retry.DefaultBaseDelay)
	}
	return &Store{db: db, policy: policy}
}

// SetLogger sets an optional logger for insert/rewrite observability.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Insert durably commits a reading.
//
// Outcomes follow the per-insert state machine: the attempt is retried on
// transient lock contention, committed exactly once, or skipped as a
// duplicate when a row with the same (device_id, timestamp) already
// exists. Exhausted retries surface the final busy error to the caller,
// who decides whether to skip the reading and continue the cycle.
//
// The measurement timestamp is normalised to UTC before storage so string
// comparison, ordering, and the dedup key all agree regardless of the
// collecting machine's zone offset. The vendor's original representation
// survives in RawPayload.
//
// Parameters:
//   - ctx: Context for cancellation; an insert is a single transaction,
//     so cancellation never leaves a half-written row
//   - r: Canonical reading (validated; InsertedAt is ignored on input)
//
// Returns:
//   - InsertOutcome: Inserted or DuplicateSkipped
//   - error: Permanent failure or wrapped retry.ErrAttemptsExhausted
func (s *Store) Insert(ctx context.Context, r *Reading) (InsertOutcome, error) {
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.insertRow(ctx, r)
	}, classifyStoreError)

	if err != nil {
		if errors.Is(err, errDuplicate) {
			if s.logger != nil {
				s.logger.Debug("duplicate reading skipped",
					"device_id", r.DeviceID,
					"timestamp", r.Timestamp.UTC().Format(time.RFC3339),
				)
			}
			return DuplicateSkipped, nil
		}
		return 0, fmt.Errorf("inserting reading for %s: %w", r.DeviceID, err)
	}

	if s.logger != nil {
		s.logger.Debug("reading committed",
			"device_id", r.DeviceID,
			"value_celsius", r.ValueCelsius,
			"anomalous", r.IsAnomalous,
		)
	}
	return Inserted, nil
}

// insertRow executes the single-row insert transaction.
func (s *Store) insertRow(ctx context.Context, r *Reading) error {
	var rawJSON sql.NullString
	if r.RawPayload != nil {
		data, err := json.Marshal(r.RawPayload)
		if err != nil {
			return fmt.Errorf("marshalling raw payload: %w", err)
		}
		rawJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO readings (
			device_id, timestamp, value_celsius, location, source_kind,
			is_anomalous, humidity_percent, battery_percent, signal_strength,
			thermostat_mode, thermostat_state, vendor_updated_at, raw_payload,
			pm25_ug_m3, voc_ppb, co_ppm, air_quality_index, inserted_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?
		)`

	_, err := s.db.ExecContext(ctx, query,
		r.DeviceID,
		r.Timestamp.UTC().Format(time.RFC3339),
		r.ValueCelsius,
		r.Location,
		string(r.SourceKind),
		boolToInt(r.IsAnomalous),
		nullableFloat(r.HumidityPercent),
		nullableFloat(r.BatteryPercent),
		nullableFloat(r.SignalStrength),
		nullableString(r.ThermostatMode),
		nullableString(r.ThermostatState),
		nullableTime(r.VendorUpdatedAt),
		rawJSON,
		nullableFloat(r.PM25),
		nullableFloat(r.VOCPPB),
		nullableFloat(r.COPPM),
		nullableFloat(r.AirQualityIndex),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if database.IsUniqueConstraintError(err) {
			return errDuplicate
		}
		return err
	}
	return nil
}

// classifyStoreError maps driver errors onto the retry taxonomy: lock
// contention is transient, everything else (including duplicates) is
// permanent.
func classifyStoreError(err error) retry.Classification {
	if database.IsBusyError(err) {
		return retry.Transient
	}
	return retry.Permanent
}

// Filter narrows a readings query. Zero values mean "no constraint".
type Filter struct {
	// DeviceID restricts to one device.
	DeviceID string

	// SourceKind restricts to one ecosystem.
	SourceKind SourceKind

	// From/To bound the measurement timestamp (inclusive from,
	// exclusive to).
	From time.Time
	To   time.Time

	// OnlyAnomalous restricts to flagged readings.
	OnlyAnomalous bool

	// Limit caps the result size (default 500, max 5000).
	Limit int
}

// Query returns readings matching the filter, ordered by measurement
// timestamp then insertion order. The sequence is finite and restartable:
// re-invoking with the same filter re-reads the indexed table from the
// start.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - f: Filter (zero value returns the newest default page)
//
// Returns:
//   - []Reading: Matching rows, oldest first
//   - error: If the query or a row scan fails
func (s *Store) Query(ctx context.Context, f Filter) ([]Reading, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, fmt.Errorf("%w: to precedes from", ErrInvalidFilter)
	}

	query := `
		SELECT device_id, timestamp, value_celsius, location, source_kind,
			is_anomalous, humidity_percent, battery_percent, signal_strength,
			thermostat_mode, thermostat_state, vendor_updated_at, raw_payload,
			pm25_ug_m3, voc_ppb, co_ppm, air_quality_index, inserted_at
		FROM readings`

	var (
		where []string
		args  []any
	)
	if f.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.SourceKind != "" {
		where = append(where, "source_kind = ?")
		args = append(args, string(f.SourceKind))
	}
	if !f.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		where = append(where, "timestamp < ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	if f.OnlyAnomalous {
		where = append(where, "is_anomalous = 1")
	}

	for i, clause := range where {
		if i == 0 {
			query += "\n\t\tWHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	query += "\n\t\tORDER BY timestamp, id\n\t\tLIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0, limit)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		readings = append(readings, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	return readings, nil
}

// CountForDevice returns the number of stored readings for a device.
func (s *Store) CountForDevice(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM readings WHERE device_id = ?", deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return count, nil
}

// RewriteLocation rewrites the denormalised location of every historical
// reading for a device. This is the single exception to reading
// immutability, invoked only by the registry's recursive rename. The
// rewrite is one UPDATE statement, so it is all-or-nothing.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device whose history to rewrite
//   - location: New display location
//
// Returns:
//   - int64: Number of rows rewritten
//   - error: Permanent failure or wrapped retry.ErrAttemptsExhausted
func (s *Store) RewriteLocation(ctx context.Context, deviceID, location string) (int64, error) {
	var affected int64
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx,
			"UPDATE readings SET location = ? WHERE device_id = ?",
			location, deviceID,
		)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	}, classifyStoreError)
	if err != nil {
		return 0, fmt.Errorf("rewriting location for %s: %w", deviceID, err)
	}

	if s.logger != nil {
		s.logger.Info("historical readings rewritten",
			"device_id", deviceID,
			"location", location,
			"rows_affected", affected,
		)
	}
	return affected, nil
}

// scanReading scans one row into a Reading.
func scanReading(rows *sql.Rows) (*Reading, error) {
	var (
		r               Reading
		timestamp       string
		sourceKind      string
		isAnomalous     int
		humidity        sql.NullFloat64
		battery         sql.NullFloat64
		signal          sql.NullFloat64
		mode            sql.NullString
		state           sql.NullString
		vendorUpdatedAt sql.NullString
		rawJSON         sql.NullString
		pm25            sql.NullFloat64
		voc             sql.NullFloat64
		co              sql.NullFloat64
		aqi             sql.NullFloat64
		insertedAt      string
	)

	err := rows.Scan(
		&r.DeviceID,
		&timestamp,
		&r.ValueCelsius,
		&r.Location,
		&sourceKind,
		&isAnomalous,
		&humidity,
		&battery,
		&signal,
		&mode,
		&state,
		&vendorUpdatedAt,
		&rawJSON,
		&pm25,
		&voc,
		&co,
		&aqi,
		&insertedAt,
	)
	if err != nil {
		return nil, err
	}

	r.SourceKind = SourceKind(sourceKind)
	r.IsAnomalous = isAnomalous != 0

	r.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	r.InsertedAt, err = time.Parse(time.RFC3339, insertedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing inserted_at: %w", err)
	}

	if humidity.Valid {
		r.HumidityPercent = &humidity.Float64
	}
	if battery.Valid {
		r.BatteryPercent = &battery.Float64
	}
	if signal.Valid {
		r.SignalStrength = &signal.Float64
	}
	if mode.Valid {
		r.ThermostatMode = &mode.String
	}
	if state.Valid {
		r.ThermostatState = &state.String
	}
	if vendorUpdatedAt.Valid {
		t, parseErr := time.Parse(time.RFC3339, vendorUpdatedAt.String)
		if parseErr == nil {
			r.VendorUpdatedAt = &t
		}
	}
	if pm25.Valid {
		r.PM25 = &pm25.Float64
	}
	if voc.Valid {
		r.VOCPPB = &voc.Float64
	}
	if co.Valid {
		r.COPPM = &co.Float64
	}
	if aqi.Valid {
		r.AirQualityIndex = &aqi.Float64
	}
	if rawJSON.Valid && rawJSON.String != "" {
		if err := json.Unmarshal([]byte(rawJSON.String), &r.RawPayload); err != nil {
			return nil, fmt.Errorf("unmarshalling raw payload: %w", err)
		}
	}

	return &r, nil
}

// nullableFloat returns a sql.NullFloat64 for optional float pointers.
func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
