package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bessmon/internal/api/web"
	"bessmon/internal/config"
	"bessmon/internal/dashboard"
	"bessmon/internal/metrics"
	"bessmon/internal/transport"
)

// Backend is the render loop as seen by the HTTP layer: it accepts ingested
// messages and deletes stored history behind the admin secret.
type Backend interface {
	Enqueue(msg transport.Message)
	Clear(ctx context.Context, st *dashboard.State, target, secret string) error
}

type Server struct {
	cfg     *config.Manager
	state   *dashboard.State
	backend Backend
	live    http.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status        string `json:"status"`
	Connected     bool   `json:"connected"`
	LastMessage   string `json:"last_message"`
	Time          string `json:"time"`
	Version       string `json:"version"`
	ConfigPath    string `json:"config_path"`
	Broker        string `json:"broker"`
	ReadingsTopic string `json:"readings_topic"`
	AlarmsTopic   string `json:"alarms_topic"`
	StoreAlarms   bool   `json:"store_alarms"`
}

type clearRequest struct {
	Target string `json:"target"`
	Secret string `json:"secret"`
}

// New builds the dashboard HTTP surface. live serves the websocket upgrade
// and may be nil; m may be nil, in which case /metrics is not mounted.
func New(cfg *config.Manager, st *dashboard.State, backend Backend, live http.Handler, m *metrics.Metrics, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:     cfg,
		state:   st,
		backend: backend,
		live:    live,
		metrics: m,
		logger:  logger,
		version: version,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/fragment", s.handleFragment)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/readings", s.handleReadings)
		r.Get("/alarms", s.handleAlarms)
		r.Get("/status", s.handleStatus)
		r.Post("/ingest", s.handleIngest)
	})
	r.Post("/admin/clear", s.handleClear)
	if s.live != nil {
		r.Get("/ws", s.live.ServeHTTP)
	}
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

// Start binds addr and serves until ctx is done. Bind errors are returned;
// later serve errors are logged.
func Start(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("http server error", "err", err)
			}
		}
	}()
	if logger != nil {
		logger.Info("http server listening", "addr", ln.Addr().String())
	}
	return httpServer, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) view(r *http.Request) dashboard.View {
	return s.state.View().Filtered(r.URL.Query().Get("bess"))
}

func (s *Server) page(r *http.Request) web.Page {
	return web.Page{
		View:      s.view(r),
		RefreshMS: s.cfg.Get().Dashboard.RefreshInterval.Milliseconds(),
		Live:      s.live != nil,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.Render(w, s.page(r)); err != nil {
		s.logger.Error("render index failed", "err", err)
	}
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.RenderContent(w, s.page(r)); err != nil {
		s.logger.Error("render fragment failed", "err", err)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(r))
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	readings := s.view(r).Readings
	if limit, ok := parseLimit(r); ok && limit < len(readings) {
		readings = readings[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	alarms := s.view(r).Alarms
	if limit, ok := parseLimit(r); ok && limit < len(alarms) {
		alarms = alarms[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": alarms,
		"count":  len(alarms),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	connected, status := s.state.Connection()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        status,
		Connected:     connected,
		LastMessage:   s.state.LastMessage(),
		Time:          time.Now().UTC().Format(time.RFC3339Nano),
		Version:       s.version,
		ConfigPath:    s.cfg.Path(),
		Broker:        cfg.Broker.Kind,
		ReadingsTopic: cfg.Broker.ReadingsTopic,
		AlarmsTopic:   cfg.Broker.AlarmsTopic,
		StoreAlarms:   cfg.Dashboard.StoreAlarms,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}
	var req clearRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = dashboard.ClearReadings
	}
	err = s.backend.Clear(r.Context(), s.state, target, req.Secret)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": target})
	case errors.Is(err, dashboard.ErrInvalidSecret):
		s.logger.Warn("admin clear rejected", "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, dashboard.ErrInvalidSecret.Error())
	case errors.Is(err, dashboard.ErrUnknownTarget):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("admin clear failed", "target", target, "err", err)
		writeError(w, http.StatusInternalServerError, "clear failed")
	}
}

// parseLimit reports a positive ?limit; zero or a bad value means no limit.
func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
