// Package main implements the msamon CLI.
package main

import (
	"context"

	"github.com/rsclarke/msamon/internal/config"
	"github.com/rsclarke/msamon/internal/credential"
	"github.com/rsclarke/msamon/internal/monitor"
	"github.com/rsclarke/msamon/internal/msa"
	"github.com/rsclarke/msamon/internal/notify"
	"github.com/rsclarke/msamon/internal/session"
)

type sessionCache interface {
	session.Store
	List(ctx context.Context) ([]session.Session, error)
	Close() error
}

// app wires the controller client, session cache and poller from the loaded
// config.
type app struct {
	history  *session.SQLiteStore
	sessions sessionCache
	client   *msa.Client
	manager  *session.Manager
	poller   *monitor.Poller
}

// openSessionCache returns the configured session backend. The sqlite
// backend shares the history database.
func openSessionCache(ctx context.Context, history *session.SQLiteStore) (sessionCache, error) {
	if cfg.Cache.Backend != "redis" {
		return history, nil
	}
	rs, err := session.OpenRedisStore(ctx, cfg.Cache.Redis)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func notifierFor(c *config.Config) notify.Notifier {
	if c.Notify.URL == "" {
		return notify.Discard{}
	}
	return notify.NewWebhook(c.Notify.URL, c.Notify.Token)
}

func newApp(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alg, err := credential.ParseAlgorithm(cfg.MSA.Digest)
	if err != nil {
		return nil, err
	}

	client, err := msa.NewClient(msa.Config{
		VerifyTLS:      cfg.MSA.VerifyTLS,
		CAFile:         cfg.MSA.CAFile,
		APIVersion:     cfg.MSA.APIVersion,
		Username:       cfg.MSA.Username,
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		Logger:         logger.Named("msa"),
	})
	if err != nil {
		return nil, err
	}

	history, err := session.OpenSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	sessions, err := openSessionCache(ctx, history)
	if err != nil {
		_ = history.Close()
		return nil, err
	}

	manager, err := session.NewManager(sessions, client, session.ManagerConfig{
		Algorithm: alg,
		TTL:       cfg.Cache.SessionTTL,
		Logger:    logger.Named("session"),
	})
	if err != nil {
		if sessions != sessionCache(history) {
			_ = sessions.Close()
		}
		_ = history.Close()
		return nil, err
	}

	poller := monitor.New(manager, client, history.DB(), notifierFor(cfg), monitor.Config{
		Host:        cfg.Host(),
		Transport:   cfg.Transport(),
		Credentials: cfg.Credentials(),
		Resources:   cfg.Poll.Resources,
		HistoryDays: cfg.Cache.HistoryDays,
		Logger:      logger,
	})

	return &app{
		history:  history,
		sessions: sessions,
		client:   client,
		manager:  manager,
		poller:   poller,
	}, nil
}

func (a *app) Close() {
	if a.sessions != sessionCache(a.history) {
		_ = a.sessions.Close()
	}
	_ = a.history.Close()
}
