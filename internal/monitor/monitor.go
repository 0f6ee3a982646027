// Package monitor polls a storage controller on an interval, records the
// component readings and alerts on unhealthy components.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rsclarke/msamon/internal/credential"
	"github.com/rsclarke/msamon/internal/db"
	"github.com/rsclarke/msamon/internal/logging"
	"github.com/rsclarke/msamon/internal/metrics"
	"github.com/rsclarke/msamon/internal/models"
	"github.com/rsclarke/msamon/internal/msa"
	"github.com/rsclarke/msamon/internal/notify"
	"github.com/rsclarke/msamon/internal/resource"
)

// HealthOK is the health-numeric value of a component with no faults.
const HealthOK = "0"

var healthNames = map[string]string{
	"0": "OK",
	"1": "Degraded",
	"2": "Fault",
	"3": "Unknown",
	"4": "N/A",
}

// HealthName returns the display name of a health-numeric code.
func HealthName(code string) string {
	if name, ok := healthNames[code]; ok {
		return name
	}
	return code
}

// Sessions hands out session keys and forgets them on request.
type Sessions interface {
	GetValidSession(ctx context.Context, id msa.HostIdentity, t msa.Transport, creds credential.Credentials) (string, error)
	Invalidate(ctx context.Context, id msa.HostIdentity, t msa.Transport) error
}

// Fetcher runs a show command against the controller.
type Fetcher interface {
	FetchResource(ctx context.Context, id msa.HostIdentity, t msa.Transport, sessionKey, resource string) (*msa.Response, error)
}

// Config holds Poller settings.
type Config struct {
	Host        msa.HostIdentity
	Transport   msa.Transport
	Credentials credential.Credentials
	Resources   []string

	// HistoryDays bounds how long readings are kept. Zero keeps them forever.
	HistoryDays int

	Logger *zap.Logger
}

// Poller fetches every configured resource once per cycle.
type Poller struct {
	sessions Sessions
	client   Fetcher
	db       *sql.DB
	cfg      Config

	mu       sync.RWMutex
	notifier notify.Notifier

	logger *zap.Logger

	// Now is the clock used for reading timestamps and pruning.
	Now func() time.Time
}

// New creates a Poller. A nil notifier drops alerts.
func New(sessions Sessions, client Fetcher, database *sql.DB, notifier notify.Notifier, cfg Config) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Poller{
		sessions: sessions,
		client:   client,
		db:       database,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(logging.Component("monitor")),
		Now:      time.Now,
	}
}

// SetNotifier replaces the alert target. A nil notifier drops alerts.
func (p *Poller) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Discard{}
	}
	p.mu.Lock()
	p.notifier = n
	p.mu.Unlock()
}

func (p *Poller) notify(ctx context.Context, logger *zap.Logger, msg string) {
	p.mu.RLock()
	n := p.notifier
	p.mu.RUnlock()
	if err := n.Notify(ctx, msg); err != nil {
		logger.Warn("alert not delivered", zap.Error(err))
	}
}

// Fetch runs "show <name>" with a valid session. If the controller refuses
// the request the cached session is invalidated and the request is retried
// once with a fresh login. Every non-zero return code counts as a refusal,
// so a command error costs one extra login before it is returned.
func (p *Poller) Fetch(ctx context.Context, name string) (*msa.Response, error) {
	key, err := p.sessions.GetValidSession(ctx, p.cfg.Host, p.cfg.Transport, p.cfg.Credentials)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.FetchResource(ctx, p.cfg.Host, p.cfg.Transport, key, name)
	if !errors.Is(err, msa.ErrRequestFailed) {
		return resp, err
	}

	p.logger.Warn("request refused, renewing session",
		logging.Resource(name),
		logging.Host(p.cfg.Host.String()),
		zap.Error(err))

	if err := p.sessions.Invalidate(ctx, p.cfg.Host, p.cfg.Transport); err != nil {
		return nil, err
	}
	key, err = p.sessions.GetValidSession(ctx, p.cfg.Host, p.cfg.Transport, p.cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return p.client.FetchResource(ctx, p.cfg.Host, p.cfg.Transport, key, name)
}

// Show fetches name and projects it.
func (p *Poller) Show(ctx context.Context, name string, human bool) (resource.Records, error) {
	if _, ok := resource.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %q", resource.ErrUnsupportedResource, name)
	}
	resp, err := p.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return resource.Project(resp.Document, name, human)
}

// Poll runs one cycle over every configured resource. A failing resource
// does not stop the others; all failures are returned joined.
func (p *Poller) Poll(ctx context.Context) error {
	logger := p.logger.With(zap.String("cycle", uuid.NewString()))

	var errs []error
	for _, name := range p.cfg.Resources {
		if err := p.pollResource(ctx, logger, name); err != nil {
			metrics.PollErrors.WithLabelValues(name).Inc()
			logger.Error("poll failed", logging.Resource(name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if err := p.prune(logger); err != nil {
		logger.Error("prune failed", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Poller) pollResource(ctx context.Context, logger *zap.Logger, name string) error {
	records, err := p.Show(ctx, name, false)
	if err != nil {
		return err
	}

	host := p.cfg.Host.String()
	now := p.Now().UTC().Unix()
	readings := make([]models.ComponentReading, 0, len(records))
	unhealthy := 0
	for _, r := range records {
		readings = append(readings, models.ComponentReading{
			Host:        host,
			Resource:    name,
			ComponentID: r.ComponentID,
			Health:      r.Health(),
			Fields:      r.Fields,
			RecordedAt:  now,
		})
		if r.Health() != HealthOK {
			unhealthy++
		}
	}

	if err := db.SaveReadings(p.db, readings); err != nil {
		return err
	}

	metrics.UnhealthyComponents.WithLabelValues(host, name).Set(float64(unhealthy))
	logger.Info("poll complete",
		logging.Resource(name),
		logging.Host(host),
		zap.Int("components", len(records)),
		zap.Int("unhealthy", unhealthy))

	return p.alert(ctx, logger, host, name, records, now)
}

// alert notifies once when a component turns unhealthy or changes health,
// and once more when it recovers. The sent state is kept in
// component_alerts so restarts do not repeat alerts.
func (p *Poller) alert(ctx context.Context, logger *zap.Logger, host, name string, records resource.Records, now int64) error {
	alerted, err := db.ListAlerts(p.db, host, name)
	if err != nil {
		return err
	}

	for _, r := range records {
		health := r.Health()
		prev, wasAlerted := alerted[r.ComponentID]
		switch {
		case health != HealthOK && prev != health:
			logger.Warn("component unhealthy",
				logging.Resource(name),
				zap.String("component", r.ComponentID),
				logging.Health(health))
			p.notify(ctx, logger, AlertMessage(host, name, r))
			if err := db.SetAlert(p.db, host, name, r.ComponentID, health, now); err != nil {
				return err
			}
		case health == HealthOK && wasAlerted:
			logger.Info("component recovered",
				logging.Resource(name),
				zap.String("component", r.ComponentID))
			p.notify(ctx, logger, RecoveryMessage(host, name, r))
			if err := db.ClearAlert(p.db, host, name, r.ComponentID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Poller) prune(logger *zap.Logger) error {
	if p.cfg.HistoryDays <= 0 {
		return nil
	}
	cutoff := p.Now().UTC().AddDate(0, 0, -p.cfg.HistoryDays).Unix()
	n, err := db.PruneReadings(p.db, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debug("pruned readings", zap.Int64("rows", n))
	}
	return nil
}

// Run polls immediately and then every interval until ctx is done. Start
// and stop are announced through the notifier.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	p.notify(ctx, p.logger, "Starting msamon for "+p.cfg.Host.String())
	defer p.notify(context.WithoutCancel(ctx), p.logger, "Stopping msamon for "+p.cfg.Host.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			p.logger.Debug("cycle finished with errors", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// AlertMessage renders the alert text for an unhealthy component.
func AlertMessage(host, name string, r resource.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s component is unhealthy\n", host, name)
	fmt.Fprintf(&b, "[Component]: %s\n", r.ComponentID)
	fmt.Fprintf(&b, "[Health]: %s\n", HealthName(r.Health()))
	for _, code := range []string{"s", "t", "ts"} {
		v, ok := r.Fields[code]
		if !ok {
			continue
		}
		if name, known := resource.FieldName(code); known {
			code = name
		}
		fmt.Fprintf(&b, "[%s]: %s\n", code, v)
	}
	return b.String()
}

// RecoveryMessage renders the notice for a component that is healthy again.
func RecoveryMessage(host, name string, r resource.Record) string {
	return fmt.Sprintf("%s %s component recovered\n[Component]: %s\n[Health]: %s\n",
		host, name, r.ComponentID, HealthName(r.Health()))
}
