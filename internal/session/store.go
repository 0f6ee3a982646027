// Package session caches management API session keys and hands out a valid
// one per host and transport.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rsclarke/msamon/internal/db"
	"github.com/rsclarke/msamon/internal/models"
	"github.com/rsclarke/msamon/internal/msa"
)

// ErrCacheUnavailable wraps any failure of the backing store.
var ErrCacheUnavailable = errors.New("session cache unavailable")

// Session is a cached session key for one host and transport.
type Session struct {
	Identity  msa.HostIdentity
	Transport msa.Transport
	Key       string
	ExpiresAt time.Time
}

// Valid reports whether the session can still be used at now.
func (s Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Store persists sessions keyed by host identity and transport.
type Store interface {
	// Lookup returns nil, nil when no session is cached.
	Lookup(ctx context.Context, id msa.HostIdentity, t msa.Transport) (*Session, error)
	Upsert(ctx context.Context, s Session) error
	Expire(ctx context.Context, id msa.HostIdentity, t msa.Transport, at time.Time) error
}

// SQLiteStore implements Store on the sessionkey_cache table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already opened database.
func NewSQLiteStore(database *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

// OpenSQLiteStore opens (creating if needed) the cache file at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create cache dir: %w", ErrCacheUnavailable, err)
		}
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return &SQLiteStore{db: database}, nil
}

// DB returns the underlying database, which also holds reading history.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// keyColumns returns the primary key columns for id over t. Plain sessions
// are bound to the host that is dialled, so their DNS name column is left
// empty and a host configured only by name keys on that name.
func keyColumns(id msa.HostIdentity, t msa.Transport) (dnsName, ip, proto string) {
	if t == msa.TLS {
		return id.DNSName, id.Address, t.String()
	}
	if id.Address == "" {
		return "", id.DNSName, t.String()
	}
	return "", id.Address, t.String()
}

// Lookup returns the cached session for id over t.
func (s *SQLiteStore) Lookup(_ context.Context, id msa.HostIdentity, t msa.Transport) (*Session, error) {
	dnsName, ip, proto := keyColumns(id, t)
	row, err := db.GetSession(s.db, dnsName, ip, proto)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %w", ErrCacheUnavailable, err)
	}
	if row == nil {
		return nil, nil
	}
	return &Session{
		Identity:  id,
		Transport: t,
		Key:       row.Key,
		ExpiresAt: time.Unix(row.ExpiresAt, 0).UTC(),
	}, nil
}

// Upsert stores sess, replacing any session with the same key.
func (s *SQLiteStore) Upsert(_ context.Context, sess Session) error {
	dnsName, ip, proto := keyColumns(sess.Identity, sess.Transport)
	err := db.UpsertSession(s.db, models.Session{
		DNSName:   dnsName,
		IP:        ip,
		Proto:     proto,
		ExpiresAt: sess.ExpiresAt.Unix(),
		Key:       sess.Key,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// Expire marks the cached session for id over t as expired at at.
func (s *SQLiteStore) Expire(_ context.Context, id msa.HostIdentity, t msa.Transport, at time.Time) error {
	dnsName, ip, proto := keyColumns(id, t)
	if err := db.ExpireSession(s.db, dnsName, ip, proto, at.Unix()); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// List returns every cached session.
func (s *SQLiteStore) List(_ context.Context) ([]Session, error) {
	rows, err := db.ListSessions(s.db)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrCacheUnavailable, err)
	}
	sessions := make([]Session, 0, len(rows))
	for _, r := range rows {
		t, err := msa.ParseTransport(r.Proto)
		if err != nil {
			return nil, fmt.Errorf("%w: row %s/%s: %w", ErrCacheUnavailable, r.DNSName, r.IP, err)
		}
		sessions = append(sessions, Session{
			Identity:  msa.HostIdentity{Address: r.IP, DNSName: r.DNSName},
			Transport: t,
			Key:       r.Key,
			ExpiresAt: time.Unix(r.ExpiresAt, 0).UTC(),
		})
	}
	return sessions, nil
}
