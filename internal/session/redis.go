package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rsclarke/msamon/internal/msa"
)

// expiredRetention keeps a hash around after its session expires so lookups
// can still tell an expired key from a missing one.
const expiredRetention = time.Hour

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisStore implements Store on Redis hashes, for several monitors sharing
// one session per controller.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "msamon:session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedisStore connects and pings the server.
func OpenRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %w", ErrCacheUnavailable, cfg.Addr, err)
	}
	return NewRedisStore(client, cfg.KeyPrefix), nil
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(id msa.HostIdentity, t msa.Transport) string {
	dnsName, ip, proto := keyColumns(id, t)
	return s.prefix + proto + "|" + dnsName + "|" + ip
}

// Lookup returns the cached session for id over t.
func (s *RedisStore) Lookup(ctx context.Context, id msa.HostIdentity, t msa.Transport) (*Session, error) {
	vals, err := s.client.HGetAll(ctx, s.key(id, t)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %w", ErrCacheUnavailable, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	expires, err := strconv.ParseInt(vals["expired"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiry %q: %w", ErrCacheUnavailable, vals["expired"], err)
	}
	return &Session{
		Identity:  id,
		Transport: t,
		Key:       vals["skey"],
		ExpiresAt: time.Unix(expires, 0).UTC(),
	}, nil
}

// Upsert stores sess, replacing any session with the same key.
func (s *RedisStore) Upsert(ctx context.Context, sess Session) error {
	dnsName, ip, proto := keyColumns(sess.Identity, sess.Transport)
	key := s.key(sess.Identity, sess.Transport)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"dns_name", dnsName,
		"ip", ip,
		"proto", proto,
		"skey", sess.Key,
		"expired", strconv.FormatInt(sess.ExpiresAt.Unix(), 10),
	)
	pipe.ExpireAt(ctx, key, sess.ExpiresAt.Add(expiredRetention))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: upsert: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// Expire marks the cached session for id over t as expired at at. A missing
// session is not an error.
func (s *RedisStore) Expire(ctx context.Context, id msa.HostIdentity, t msa.Transport, at time.Time) error {
	key := s.key(id, t)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: expire: %w", ErrCacheUnavailable, err)
	}
	if n == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "expired", strconv.FormatInt(at.Unix(), 10))
	pipe.ExpireAt(ctx, key, at.Add(expiredRetention))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: expire: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// List returns every cached session under the store's prefix.
func (s *RedisStore) List(ctx context.Context) ([]Session, error) {
	var sessions []Session
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		vals, err := s.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: list: %w", ErrCacheUnavailable, err)
		}
		if len(vals) == 0 {
			continue
		}
		t, err := msa.ParseTransport(vals["proto"])
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", ErrCacheUnavailable, iter.Val(), err)
		}
		expires, err := strconv.ParseInt(vals["expired"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: invalid expiry: %w", ErrCacheUnavailable, iter.Val(), err)
		}
		sessions = append(sessions, Session{
			Identity:  msa.HostIdentity{Address: vals["ip"], DNSName: vals["dns_name"]},
			Transport: t,
			Key:       vals["skey"],
			ExpiresAt: time.Unix(expires, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrCacheUnavailable, err)
	}
	return sessions, nil
}
