// Package server implements the status listener run alongside the poller.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/msamon/internal/api"
	"github.com/rsclarke/msamon/internal/db"
	"github.com/rsclarke/msamon/internal/metrics"
	"github.com/rsclarke/msamon/internal/resource"
)

const (
	defaultReadingsLimit = 100
	maxReadingsLimit     = 1000
)

// StatusServer exposes metrics, a liveness probe and recorded readings for
// one controller.
type StatusServer struct {
	DB     *sql.DB
	Host   string
	Logger *zap.Logger
}

// Handler returns the HTTP handler for the status listener.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/readings/{resource}", s.handleListReadings)
	return mux
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "cache unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *StatusServer) handleListReadings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("resource")
	if _, ok := resource.Lookup(name); !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "unsupported resource"})
		return
	}

	limit := defaultReadingsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxReadingsLimit)
	}

	readings, err := db.ListReadings(s.DB, s.Host, name, limit)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("list readings", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListReadingsResponse{
		Host:     s.Host,
		Resource: name,
		Readings: make([]api.ReadingInfo, 0, len(readings)),
	}
	for _, rd := range readings {
		fields := rd.Fields
		if fields == nil {
			fields = map[string]string{}
		}
		resp.Readings = append(resp.Readings, api.ReadingInfo{
			ComponentID: rd.ComponentID,
			Health:      rd.Health,
			Fields:      fields,
			RecordedAt:  time.Unix(rd.RecordedAt, 0).UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
