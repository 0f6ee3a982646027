package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rsclarke/msamon/internal/credential"
	"github.com/rsclarke/msamon/internal/msa"
)

type fakeAuth struct {
	calls   int
	digests []string
	keys    []string
	err     error
}

func (f *fakeAuth) Authenticate(_ context.Context, _ msa.HostIdentity, _ msa.Transport, digest string) (string, error) {
	f.calls++
	f.digests = append(f.digests, digest)
	if f.err != nil {
		return "", f.err
	}
	if len(f.keys) == 0 {
		return fmt.Sprintf("K%d", f.calls), nil
	}
	key := f.keys[0]
	f.keys = f.keys[1:]
	return key, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var (
	hostA = msa.HostIdentity{Address: "10.0.0.1", DNSName: "msa-a.example.com"}
	hostB = msa.HostIdentity{Address: "10.0.0.2", DNSName: "msa-b.example.com"}
	creds = credential.Credentials{Username: "admin", Password: "admin123"}
)

func newTestManager(t *testing.T, auth Authenticator) (*Manager, *SQLiteStore, *fakeClock) {
	t.Helper()
	store := openTestStore(t)
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(store, auth, ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Now = clock.Now
	return m, store, clock
}

func TestGetValidSessionScenario(t *testing.T) {
	auth := &fakeAuth{}
	m, store, clock := newTestManager(t, auth)
	ctx := context.Background()

	key, err := m.GetValidSession(ctx, hostA, msa.Plain, creds)
	if err != nil {
		t.Fatalf("first GetValidSession failed: %v", err)
	}
	if key != "K1" || auth.calls != 1 {
		t.Fatalf("key = %q after %d logins, want K1 after 1", key, auth.calls)
	}

	cached, err := store.Lookup(ctx, hostA, msa.Plain)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if cached == nil || cached.Key != "K1" {
		t.Fatalf("expected K1 cached, got %+v", cached)
	}
	if want := clock.now.Add(30 * time.Minute); !cached.ExpiresAt.Equal(want) {
		t.Errorf("expires at %v, want %v", cached.ExpiresAt, want)
	}

	clock.Advance(time.Minute)
	key, err = m.GetValidSession(ctx, hostA, msa.Plain, creds)
	if err != nil {
		t.Fatalf("second GetValidSession failed: %v", err)
	}
	if key != "K1" || auth.calls != 1 {
		t.Errorf("expected cache hit with K1 and no login, got %q after %d logins", key, auth.calls)
	}

	clock.Advance(30 * time.Minute)
	key, err = m.GetValidSession(ctx, hostA, msa.Plain, creds)
	if err != nil {
		t.Fatalf("third GetValidSession failed: %v", err)
	}
	if key != "K2" || auth.calls != 2 {
		t.Errorf("expected renewal to K2 after expiry, got %q after %d logins", key, auth.calls)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected renewal to update in place, got %d rows", len(all))
	}
}

func TestGetValidSessionSendsDigest(t *testing.T) {
	auth := &fakeAuth{}
	m, _, _ := newTestManager(t, auth)

	if _, err := m.GetValidSession(context.Background(), hostA, msa.Plain, creds); err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	if auth.digests[0] != credential.Digest("admin", "admin123") {
		t.Errorf("digest = %q, want md5 of admin_admin123", auth.digests[0])
	}
}

func TestGetValidSessionPartitions(t *testing.T) {
	auth := &fakeAuth{}
	m, _, _ := newTestManager(t, auth)
	ctx := context.Background()

	calls := []struct {
		id msa.HostIdentity
		t  msa.Transport
	}{
		{hostA, msa.Plain},
		{hostA, msa.TLS},
		{hostB, msa.Plain},
		{hostA, msa.Plain},
		{hostA, msa.TLS},
		{hostB, msa.Plain},
	}
	keys := make([]string, 0, len(calls))
	for _, c := range calls {
		key, err := m.GetValidSession(ctx, c.id, c.t, creds)
		if err != nil {
			t.Fatalf("GetValidSession(%s, %s) failed: %v", c.id, c.t, err)
		}
		keys = append(keys, key)
	}

	if auth.calls != 3 {
		t.Errorf("expected 3 logins for 3 partitions, got %d", auth.calls)
	}
	for i := 0; i < 3; i++ {
		if keys[i] != keys[i+3] {
			t.Errorf("partition %d: first key %q, second key %q", i, keys[i], keys[i+3])
		}
	}
}

func TestGetValidSessionAuthRejectedNotCached(t *testing.T) {
	auth := &fakeAuth{err: fmt.Errorf("%w: Authentication Unsuccessful", msa.ErrAuthRejected)}
	m, store, _ := newTestManager(t, auth)
	ctx := context.Background()

	_, err := m.GetValidSession(ctx, hostA, msa.Plain, creds)
	if !errors.Is(err, msa.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if auth.calls != 1 {
		t.Errorf("expected exactly 1 login attempt, got %d", auth.calls)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("rejected login must not be cached, got %d rows", len(all))
	}
}

func TestGetValidSessionTransportError(t *testing.T) {
	auth := &fakeAuth{err: fmt.Errorf("%w: cannot connect", msa.ErrTransport)}
	m, _, _ := newTestManager(t, auth)

	_, err := m.GetValidSession(context.Background(), hostA, msa.Plain, creds)
	if !errors.Is(err, msa.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if auth.calls != 1 {
		t.Errorf("transport failures must not be retried, got %d logins", auth.calls)
	}
}

func TestInvalidateForcesLogin(t *testing.T) {
	auth := &fakeAuth{}
	m, _, _ := newTestManager(t, auth)
	ctx := context.Background()

	if _, err := m.GetValidSession(ctx, hostA, msa.Plain, creds); err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	if err := m.Invalidate(ctx, hostA, msa.Plain); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	key, err := m.GetValidSession(ctx, hostA, msa.Plain, creds)
	if err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	if key != "K2" || auth.calls != 2 {
		t.Errorf("expected fresh login after Invalidate, got %q after %d logins", key, auth.calls)
	}
}

type brokenStore struct{}

func (brokenStore) Lookup(context.Context, msa.HostIdentity, msa.Transport) (*Session, error) {
	return nil, fmt.Errorf("%w: disk I/O error", ErrCacheUnavailable)
}

func (brokenStore) Upsert(context.Context, Session) error {
	return fmt.Errorf("%w: disk I/O error", ErrCacheUnavailable)
}

func (brokenStore) Expire(context.Context, msa.HostIdentity, msa.Transport, time.Time) error {
	return fmt.Errorf("%w: disk I/O error", ErrCacheUnavailable)
}

func TestGetValidSessionCacheUnavailable(t *testing.T) {
	auth := &fakeAuth{}
	m, err := NewManager(brokenStore{}, auth, ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	_, err = m.GetValidSession(context.Background(), hostA, msa.Plain, creds)
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if auth.calls != 0 {
		t.Errorf("a broken cache must not fall back to logging in, got %d logins", auth.calls)
	}
}

func TestCustomTTL(t *testing.T) {
	auth := &fakeAuth{}
	store := openTestStore(t)
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(store, auth, ManagerConfig{TTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Now = clock.Now
	ctx := context.Background()

	if _, err := m.GetValidSession(ctx, hostA, msa.Plain, creds); err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	clock.Advance(6 * time.Minute)
	if _, err := m.GetValidSession(ctx, hostA, msa.Plain, creds); err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	if auth.calls != 2 {
		t.Errorf("expected re-login after custom TTL, got %d logins", auth.calls)
	}
}

func TestNewManagerRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewManager(openTestStore(t), &fakeAuth{}, ManagerConfig{Algorithm: credential.Algorithm("sha1")})
	if err == nil {
		t.Fatal("expected an error for an unknown digest algorithm")
	}

	m, err := NewManager(openTestStore(t), &fakeAuth{}, ManagerConfig{Algorithm: credential.SHA256})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.algorithm != credential.SHA256 {
		t.Errorf("algorithm = %q, want sha256", m.algorithm)
	}
}
