package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/msamon/internal/credential"
	"github.com/rsclarke/msamon/internal/logging"
	"github.com/rsclarke/msamon/internal/metrics"
	"github.com/rsclarke/msamon/internal/msa"
)

// DefaultTTL is how long a fresh session key is trusted. It sits below the
// controller's own idle timeout.
const DefaultTTL = 30 * time.Minute

// Authenticator exchanges a credential digest for a session key.
type Authenticator interface {
	Authenticate(ctx context.Context, id msa.HostIdentity, t msa.Transport, digest string) (string, error)
}

// Manager returns a usable session key for a host, logging in only when the
// cache has none or the cached one has expired.
//
// Lookups and writes are not serialized: two callers missing the cache at
// the same time both log in and the later write wins.
type Manager struct {
	store     Store
	auth      Authenticator
	algorithm credential.Algorithm
	ttl       time.Duration
	logger    *zap.Logger

	// Now is the clock used for expiry decisions.
	Now func() time.Time
}

// ManagerConfig holds Manager settings. A zero TTL uses DefaultTTL.
type ManagerConfig struct {
	Algorithm credential.Algorithm
	TTL       time.Duration
	Logger    *zap.Logger
}

// NewManager creates a Manager. An unknown digest algorithm is an error.
func NewManager(store Store, auth Authenticator, cfg ManagerConfig) (*Manager, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	alg, err := credential.ParseAlgorithm(string(cfg.Algorithm))
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:     store,
		auth:      auth,
		algorithm: alg,
		ttl:       ttl,
		logger:    logger,
		Now:       time.Now,
	}, nil
}

// GetValidSession returns a session key for id over t. A cached key that has
// not expired is returned without contacting the controller. Otherwise one
// login is made and its key cached for the manager's TTL. A rejected login
// is returned as msa.ErrAuthRejected and nothing is cached.
func (m *Manager) GetValidSession(ctx context.Context, id msa.HostIdentity, t msa.Transport, creds credential.Credentials) (string, error) {
	now := m.Now().UTC()

	cached, err := m.store.Lookup(ctx, id, t)
	if err != nil {
		return "", err
	}
	if cached != nil && cached.Valid(now) {
		metrics.SessionCache.WithLabelValues("hit").Inc()
		return cached.Key, nil
	}

	if cached == nil {
		metrics.SessionCache.WithLabelValues("miss").Inc()
	} else {
		metrics.SessionCache.WithLabelValues("expired").Inc()
	}

	key, err := m.auth.Authenticate(ctx, id, t, creds.Digest(m.algorithm))
	if err != nil {
		return "", fmt.Errorf("login to %s: %w", id, err)
	}

	sess := Session{
		Identity:  id,
		Transport: t,
		Key:       key,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Upsert(ctx, sess); err != nil {
		return "", err
	}

	m.logger.Info("session established",
		logging.Host(id.String()),
		logging.Scheme(t.String()),
		zap.Time("expires_at", sess.ExpiresAt))

	return key, nil
}

// Invalidate expires the cached session for id over t so the next
// GetValidSession logs in again.
func (m *Manager) Invalidate(ctx context.Context, id msa.HostIdentity, t msa.Transport) error {
	if err := m.store.Expire(ctx, id, t, m.Now().UTC()); err != nil {
		return err
	}
	m.logger.Info("session invalidated", logging.Host(id.String()), logging.Scheme(t.String()))
	return nil
}
