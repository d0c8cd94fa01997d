// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the optional status surface: counters and health
// as JSON, prometheus metrics, and a live event tap over websocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VVelox/meer/internal/brand"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/decode"
	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/health"
	"github.com/VVelox/meer/internal/logging"
	"github.com/VVelox/meer/internal/pipeline"
)

const shutdownGrace = 5 * time.Second

// Config selects the listen address and the optional endpoints.
type Config struct {
	Listen string
	Tap    bool
	Pprof  bool
}

// Sources are the live views the server reports from. Health, Clients,
// and Hub may be nil when the matching feature is off.
type Sources struct {
	Counters *counters.Counters
	Health   *health.Checker
	Clients  *decode.ClientStats
	Hub      *pipeline.Hub
}

// Server is the status HTTP server. It only ever reads pipeline state.
type Server struct {
	cfg    Config
	src    Sources
	logger *logging.Logger
}

// NewServer wires the status server. Run starts it.
func NewServer(cfg Config, src Sources, logger *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		src:    src,
		logger: logger.WithComponent("api"),
	}
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(
		s.src.Counters.Metrics().Registry(),
		promhttp.HandlerOpts{},
	)).Methods("GET")

	if s.cfg.Tap {
		r.HandleFunc("/tap", s.handleTap).Methods("GET")
	}
	if s.cfg.Pprof {
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		// Index also serves the named profiles, heap and friends.
		r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}
	return r
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("status api listening", "addr", s.cfg.Listen, "tap", s.cfg.Tap)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return errors.Wrap(err, errors.KindNetwork, "status api")
	}
}

type statusPayload struct {
	Name     string                        `json:"name"`
	Version  string                        `json:"version"`
	Uptime   string                        `json:"uptime"`
	Counters counters.Snapshot             `json:"counters"`
	Health   map[string]time.Time          `json:"health,omitempty"`
	Clients  map[string]decode.ClientEntry `json:"clients,omitempty"`
	Tap      *tapCounts                    `json:"tap,omitempty"`
}

type tapCounts struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Counters.Snapshot()

	payload := statusPayload{
		Name:     brand.LowerName,
		Version:  brand.Version,
		Uptime:   snap.Uptime.Round(time.Second).String(),
		Counters: snap,
	}
	if s.src.Health != nil {
		payload.Health = s.src.Health.Snapshot()
	}
	if s.src.Clients != nil {
		payload.Clients = s.src.Clients.Snapshot()
	}
	if s.src.Hub != nil {
		published, dropped := s.src.Hub.Stats()
		payload.Tap = &tapCounts{Published: published, Dropped: dropped}
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("status response write failed", "error", err)
	}
}
