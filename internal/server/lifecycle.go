package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ListenerConfig struct {
	Addr              string
	Handler           http.Handler
	Logger            *zap.Logger
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

func DefaultListenerConfig(addr string, handler http.Handler, logger *zap.Logger) ListenerConfig {
	return ListenerConfig{
		Addr:              addr,
		Handler:           handler,
		Logger:            logger,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// ManagedServer runs an http.Server in the background and reports whether it
// managed to bind.
type ManagedServer struct {
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger
	name     string
	errCh    chan error
	startErr error
}

func NewManagedServer(name string, cfg ListenerConfig) *ManagedServer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	errLog, _ := zap.NewStdLogAt(logger, zapcore.ErrorLevel)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cfg.Handler,
		ErrorLog:          errLog,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return &ManagedServer{
		server: srv,
		logger: logger,
		name:   name,
		errCh:  make(chan error, 1),
	}
}

// Start binds the listen address and serves in a goroutine. A bind failure
// is returned directly.
func (m *ManagedServer) Start() error {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		m.startErr = err
		return fmt.Errorf("%s failed to start: %w", m.name, err)
	}
	m.listener = ln
	m.logger.Info("listening", zap.String("server", m.name), zap.String("addr", ln.Addr().String()))

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.errCh <- err
		}
		close(m.errCh)
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (m *ManagedServer) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Err delivers a serve error, if any, and is closed when serving stops.
func (m *ManagedServer) Err() <-chan error { return m.errCh }

func (m *ManagedServer) Shutdown(ctx context.Context) {
	if m.startErr != nil || m.listener == nil {
		return
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warn("shutdown error", zap.String("server", m.name), zap.Error(err))
	}
}
