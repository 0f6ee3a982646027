package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rsclarke/msamon/internal/models"
)

// SaveReadings stores one poll's worth of component readings in a single
// transaction. Fields are stored JSON-encoded.
func SaveReadings(d *sql.DB, readings []models.ComponentReading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO component_readings (host, resource, component_id, health, fields, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range readings {
		fields := r.Fields
		if fields == nil {
			fields = map[string]string{}
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode fields for %q: %w", r.ComponentID, err)
		}
		if _, err := stmt.Exec(r.Host, r.Resource, r.ComponentID, r.Health, string(encoded), r.RecordedAt); err != nil {
			return fmt.Errorf("insert reading %q: %w", r.ComponentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ListReadings returns the most recent readings for a host and resource,
// newest first.
func ListReadings(d *sql.DB, host, resource string, limit int) ([]models.ComponentReading, error) {
	rows, err := d.Query(`
		SELECT id, host, resource, component_id, health, fields, recorded_at
		FROM component_readings
		WHERE host = ? AND resource = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, host, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var readings []models.ComponentReading
	for rows.Next() {
		var r models.ComponentReading
		var fields string
		if err := rows.Scan(&r.ID, &r.Host, &r.Resource, &r.ComponentID, &r.Health, &fields, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("decode fields for reading %d: %w", r.ID, err)
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	return readings, nil
}

// PruneReadings deletes readings recorded before the given unix time and
// returns how many rows were removed.
func PruneReadings(d *sql.DB, before int64) (int64, error) {
	result, err := d.Exec("DELETE FROM component_readings WHERE recorded_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return result.RowsAffected()
}
