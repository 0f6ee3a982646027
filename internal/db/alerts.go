package db

import (
	"database/sql"
	"fmt"
)

// ListAlerts returns the health each currently alerted component of a host
// and resource was last reported with, keyed by component id.
func ListAlerts(d *sql.DB, host, resource string) (map[string]string, error) {
	rows, err := d.Query(
		"SELECT component_id, health FROM component_alerts WHERE host = ? AND resource = ?",
		host, resource,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	alerts := make(map[string]string)
	for rows.Next() {
		var id, health string
		if err := rows.Scan(&id, &health); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts[id] = health
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// SetAlert records that an alert was sent for a component at the given health.
func SetAlert(d *sql.DB, host, resource, componentID, health string, at int64) error {
	_, err := d.Exec(`
		INSERT INTO component_alerts (host, resource, component_id, health, alerted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (host, resource, component_id) DO UPDATE SET
			health = excluded.health,
			alerted_at = excluded.alerted_at
	`, host, resource, componentID, health, at)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}

// ClearAlert forgets the alert state of a component. A missing row is not an
// error.
func ClearAlert(d *sql.DB, host, resource, componentID string) error {
	_, err := d.Exec(
		"DELETE FROM component_alerts WHERE host = ? AND resource = ? AND component_id = ?",
		host, resource, componentID,
	)
	if err != nil {
		return fmt.Errorf("clear alert: %w", err)
	}
	return nil
}
