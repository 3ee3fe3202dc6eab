// Package api exposes the HTTP surface: the inbound webhook endpoint,
// health-check reporting, liveness, and the metrics scrape endpoint.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	clarion "github.com/clarioncrm/clarion"
	"github.com/clarioncrm/clarion/cache"
	"github.com/clarioncrm/clarion/eventstore"
	"github.com/clarioncrm/clarion/healthcheck"
)

// dedupeTTL is how long a webhook event id is remembered for
// redelivery rejection.
const dedupeTTL = 24 * time.Hour

// statsCacheTTL bounds how stale a cached stats response may be.
const statsCacheTTL = 30 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Addr string `yaml:"addr" toml:"addr" env:"HTTP_ADDR" default:":8080"`

	// WebhookToken guards the inbound webhook endpoint. When empty the
	// endpoint accepts unauthenticated posts, which is only sensible
	// behind a trusted proxy.
	WebhookToken string `yaml:"webhook_token" toml:"webhook_token" env:"WEBHOOK_TOKEN"`

	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`
}

// EventStore is the slice of the event store the HTTP layer needs.
type EventStore interface {
	Create(ctx context.Context, event *eventstore.Event) error
	Ping(ctx context.Context) error
	CountByType(ctx context.Context, eventType string) (int, error)
}

// StatsProvider reports health-check history. Satisfied by
// healthcheck.Service.
type StatsProvider interface {
	Status(ctx context.Context, hours int) (*healthcheck.Stats, error)
	RunHealthCheck(ctx context.Context) healthcheck.Result
}

// WebhookMetrics records ingestion counters. Optional.
type WebhookMetrics interface {
	ObserveWebhook(eventType string)
	ObserveDuplicateWebhook()
}

// Server wires the HTTP routes to their collaborators.
type Server struct {
	cfg     Config
	store   EventStore
	checks  StatsProvider
	dedupe  cache.Engine
	metrics WebhookMetrics
	scrape  http.Handler
	logger  clarion.Logger
	router  chi.Router
}

// Option configures optional collaborators on a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger clarion.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires ingestion counters and the scrape handler.
func WithMetrics(metrics WebhookMetrics, scrape http.Handler) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.scrape = scrape
	}
}

// NewServer builds the router. The dedupe engine must already be
// connected.
func NewServer(cfg Config, store EventStore, checks StatsProvider, dedupe cache.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		checks: checks,
		dedupe: dedupe,
		logger: clarion.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/webhooks/openphone", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health-checks", s.handleHealthCheckStats)
		r.Post("/health-checks/run", s.handleHealthCheckRun)
	})

	r.Get("/healthz", s.handleHealthz)
	if s.scrape != nil {
		r.Method(http.MethodGet, "/metrics", s.scrape)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) handleHealthCheckStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	cacheKey := fmt.Sprintf("healthcheck:stats:%dh", hours)
	if cached, ok := s.dedupe.Get(r.Context(), cacheKey); ok {
		if raw, ok := cached.(string); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, raw)
			return
		}
	}

	stats, err := s.checks.Status(r.Context(), hours)
	if err != nil {
		s.logger.Error("health check stats query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load health check history")
		return
	}
	if encoded, err := json.Marshal(stats); err == nil {
		if err := s.dedupe.Set(r.Context(), cacheKey, string(encoded), statsCacheTTL); err != nil {
			s.logger.Warn("caching health check stats failed", "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleHealthCheckRun kicks off a cycle in the background. Cycles can
// block for up to the verification timeout, too long to hold a request
// open.
func (s *Server) handleHealthCheckRun(w http.ResponseWriter, _ *http.Request) {
	go func() {
		result := s.checks.RunHealthCheck(context.Background())
		s.logger.Info("manual health check finished", "status", result.Status.String())
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "event store unavailable")
		return
	}

	body := map[string]any{"status": "ok"}
	count, err := s.store.CountByType(r.Context(), eventstore.EventTypeMessageReceived)
	if err != nil {
		s.logger.Warn("counting inbound messages failed", "error", err)
	} else {
		body["inbound_messages"] = count
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.WebhookToken == "" {
		return true
	}
	token := r.Header.Get("X-Webhook-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.WebhookToken)) == 1
}
