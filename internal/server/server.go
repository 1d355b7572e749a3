// SPDX-License-Identifier: MIT

// Package server exposes health, run status, metrics and the synced guide
// over HTTP while the scheduler is running.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/epgsync/internal/config"
	"github.com/ManuGH/epgsync/internal/history"
	"github.com/ManuGH/epgsync/internal/jobs"
	xglog "github.com/ManuGH/epgsync/internal/log"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	recentRuns        = 10
)

// StatusSource reports the last finished run. *jobs.Scheduler implements it.
type StatusSource interface {
	Last() *jobs.Status
}

// HistorySource lists recorded runs. *history.Store implements it.
type HistorySource interface {
	Recent(ctx context.Context, n int) ([]history.Entry, error)
	Latest(ctx context.Context) (history.Entry, error)
}

// Config configures the HTTP surface.
type Config struct {
	Listen string
	Paths  config.OutputPaths
	// RequestLimit is the per-IP request budget per minute; 0 uses 120.
	RequestLimit int
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Now is used for the default query date; nil uses time.Now.
	Now func() time.Time
}

// Server serves the status endpoints.
type Server struct {
	cfg     Config
	status  StatusSource
	history HistorySource
}

// New creates a Server. history may be nil.
func New(cfg Config, status StatusSource, hist HistorySource) *Server {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 120
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{cfg: cfg, status: status, history: hist}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(httprate.Limit(
		s.cfg.RequestLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limit_exceeded"})
		}),
	))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(allowAnyOrigin)
		r.Get("/epg", s.handleGuide)
	})
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := xglog.WithComponent("server")
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info().
		Str(xglog.FieldEvent, "server.start").
		Str("addr", ln.Addr().String()).
		Msg("status server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Str(xglog.FieldEvent, "server.stop").Msg("status server stopped")
	return nil
}

type statusResponse struct {
	Last *jobs.Status `json:"last"`
	// LastRecorded is the newest ledger entry, reported until this process
	// finished its first run.
	LastRecorded *history.Entry  `json:"last_recorded,omitempty"`
	History      []history.Entry `json:"history,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	if s.status != nil {
		resp.Last = s.status.Last()
	}
	if resp.Last == nil && s.history != nil {
		e, err := s.history.Latest(r.Context())
		switch {
		case err == nil:
			resp.LastRecorded = &e
		case !errors.Is(err, history.ErrNotFound):
			xglog.FromContext(r.Context()).Warn().Err(err).Msg("read latest run")
		}
	}
	if s.history != nil {
		runs, err := s.history.Recent(r.Context(), recentRuns)
		if err != nil {
			xglog.FromContext(r.Context()).Warn().Err(err).Msg("read run history")
		}
		resp.History = runs
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGuide serves the raw guide when called without filters, and a
// filtered programme list for ?ch=<display name>&date=<YYYY-MM-DD>.
func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("ch"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))

	if channel == "" && date == "" {
		s.serveDocument(w, r)
		return
	}

	programmes, err := loadProgrammes(s.cfg.Paths.JSON)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "guide not synced yet"})
			return
		}
		xglog.FromContext(r.Context()).Error().Err(err).Msg("load guide")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "guide unreadable"})
		return
	}

	if date == "" {
		date = s.cfg.Now().Format(time.DateOnly)
	}
	w.Header().Set("Cache-Control", "public, max-age=1800")
	writeJSON(w, http.StatusOK, GuideResponse{
		Channel: channel,
		Date:    date,
		Items:   filterGuide(programmes, channel, date),
	})
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Add("Vary", "Accept-Encoding")

	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		if f, err := os.Open(s.cfg.Paths.Gzip); err == nil {
			defer func() { _ = f.Close() }()
			w.Header().Set("Content-Encoding", "gzip")
			if fi, err := f.Stat(); err == nil {
				w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
			}
			w.WriteHeader(http.StatusOK)
			_, _ = f.WriteTo(w)
			return
		}
	}

	f, err := os.Open(s.cfg.Paths.XML)
	if err != nil {
		w.Header().Del("Cache-Control")
		http.Error(w, "guide not synced yet", http.StatusNotFound)
		return
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		http.Error(w, "guide unreadable", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "", fi.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := xglog.WithComponent("server")
		logger.Debug().
			Str(xglog.FieldEvent, "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}
