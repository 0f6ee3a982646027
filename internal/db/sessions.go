package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/rsclarke/msamon/internal/models"
)

// GetSession returns the cached session for the key, or nil if none exists.
func GetSession(d *sql.DB, dnsName, ip, proto string) (*models.Session, error) {
	row := d.QueryRow(
		"SELECT dns_name, ip, proto, expired, skey FROM sessionkey_cache WHERE dns_name = ? AND ip = ? AND proto = ?",
		dnsName, ip, proto,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSession inserts the session or, if a row with the same key exists,
// replaces its expiry and session key.
func UpsertSession(d *sql.DB, s models.Session) error {
	_, err := d.Exec(`
		INSERT INTO sessionkey_cache (dns_name, ip, proto, expired, skey)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (dns_name, ip, proto) DO UPDATE SET
			expired = excluded.expired,
			skey = excluded.skey
	`, s.DNSName, s.IP, s.Proto, strconv.FormatInt(s.ExpiresAt, 10), s.Key)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ExpireSession moves the expiry of an existing row to at. A missing row is
// not an error.
func ExpireSession(d *sql.DB, dnsName, ip, proto string, at int64) error {
	_, err := d.Exec(
		"UPDATE sessionkey_cache SET expired = ? WHERE dns_name = ? AND ip = ? AND proto = ?",
		strconv.FormatInt(at, 10), dnsName, ip, proto,
	)
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// ListSessions returns every cached session ordered by key.
func ListSessions(d *sql.DB) ([]models.Session, error) {
	rows, err := d.Query("SELECT dns_name, ip, proto, expired, skey FROM sessionkey_cache ORDER BY dns_name, ip, proto")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var s models.Session
	var expired string
	if err := row.Scan(&s.DNSName, &s.IP, &s.Proto, &expired, &s.Key); err != nil {
		return nil, err
	}
	ts, err := parseExpiry(expired)
	if err != nil {
		return nil, err
	}
	s.ExpiresAt = ts
	return &s, nil
}

// parseExpiry accepts integral epoch seconds as well as the fractional form
// older cache files were written with.
func parseExpiry(v string) (int64, error) {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ts, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", v, err)
	}
	return int64(f), nil
}
