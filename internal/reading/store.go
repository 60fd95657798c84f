package reading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/database"
)

const (
	insertSQL = `INSERT INTO sensor_data (sensor_id, time, temp, hum, pm_1_0, pm_2_5, pm_10_0)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	// time is cast so go-sqlite3 does not reparse TIMESTAMP text into time.Time.
	selectSQL = `SELECT sensor_id, CAST(time AS TEXT), temp, hum, pm_1_0, pm_2_5, pm_10_0
		FROM sensor_data WHERE sensor_id = ? AND time = ?`

	countSQL = `SELECT COUNT(*) FROM sensor_data`
)

// Store persists readings in the sensor_data table.
//
// It has no locking of its own: the database pool holds a single connection
// and the collector inserts from one callback at a time.
type Store struct {
	db *database.DB
}

// NewStore creates a Store on an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the sensor_data table if it does not exist.
// It is safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	sub, err := fs.Sub(schemaFS, "schema")
	if err != nil {
		return fmt.Errorf("opening schema files: %w", err)
	}
	if err := s.db.Migrate(ctx, sub); err != nil {
		return fmt.Errorf("initialising sensor_data schema: %w", err)
	}
	return nil
}

// Insert writes one reading in its own transaction.
//
// A duplicate (sensor_id, time) or a missing/empty sensor_id or time returns a
// *ConstraintViolation and leaves the table unchanged. Insert never retries.
func (s *Store) Insert(ctx context.Context, r Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, insertSQL,
		r.SensorID,
		r.Time,
		r.Temp,
		r.Hum,
		r.PM1_0,
		r.PM2_5,
		r.PM10_0,
	); err != nil {
		if database.IsConstraintViolation(err) {
			return &ConstraintViolation{Reading: r, Err: database.ClassifyError(err)}
		}
		return fmt.Errorf("inserting reading %s: %w", r, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reading %s: %w", r, err)
	}
	return nil
}

// Get returns the stored reading for (sensorID, ts), or ErrNotFound.
func (s *Store) Get(ctx context.Context, sensorID, ts string) (Reading, error) {
	var r Reading
	err := s.db.QueryRowContext(ctx, selectSQL, sensorID, ts).Scan(
		&r.SensorID,
		&r.Time,
		&r.Temp,
		&r.Hum,
		&r.PM1_0,
		&r.PM2_5,
		&r.PM10_0,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, ErrNotFound
	}
	if err != nil {
		return Reading{}, fmt.Errorf("querying reading: %w", err)
	}
	return r, nil
}

// Count returns the number of stored readings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}
