// Package shim exposes the judge facade over HTTP: a health probe that reports the upstream as a
// verdict, JSON endpoints for evaluation, routing and tool listing, and Prometheus metrics.
package shim

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ariffazil/openclaw-arifos-bridge/judge"
	"github.com/ariffazil/openclaw-arifos-bridge/telemetry"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-Id"

// Evaluator is the part of *judge.Judge the shim serves.
type Evaluator interface {
	Evaluate(ctx context.Context, q judge.Query) judge.Result
	ListTools(ctx context.Context) ([]string, error)
	Handle(ctx context.Context, text, sessionID, userID string) judge.Outcome
}

// Option configures a Server.
type Option func(*Server)

// Server holds the HTTP handlers of the bridge.
type Server struct {
	judge    Evaluator
	upstream string
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
}

type ctxKey struct{}

// JudgeRequest is the body of POST /v1/judge.
type JudgeRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id"`
	ActorID   string         `json:"actor_id"`
	Lane      string         `json:"lane"`
	Context   map[string]any `json:"context"`
}

// RouteRequest is the body of POST /v1/route.
type RouteRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Verdict  string `json:"verdict"`
	Upstream string `json:"upstream,omitempty"`
	Tools    int    `json:"tools,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WithUpstream names the upstream endpoint in health reports.
func WithUpstream(endpoint string) Option {
	return func(s *Server) {
		s.upstream = endpoint
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorded per request and the registry served on /metrics.
func WithMetrics(metrics *telemetry.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.gatherer = gatherer
	}
}

// WithRateLimit limits the /v1 endpoints to rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer creates the shim in front of j.
func NewServer(j Evaluator, options ...Option) *Server {
	s := &Server{
		judge:    j,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Handler returns the routes of the shim.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.requestIDMiddleware)
	router.Use(s.accessLogMiddleware)
	router.Use(middleware.Recoverer)

	router.Get("/health", s.handleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	router.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/judge", s.handleJudge)
		r.Post("/route", s.handleRoute)
		r.Get("/tools", s.handleTools)
	})

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tools, err := s.judge.ListTools(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, Health{
			Status:   "unhealthy",
			Verdict:  string(judge.VerdictVoid),
			Upstream: s.upstream,
			Error:    err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, Health{
		Status:   "healthy",
		Verdict:  string(judge.VerdictSeal),
		Upstream: s.upstream,
		Tools:    len(tools),
	})
}

func (s *Server) handleJudge(w http.ResponseWriter, r *http.Request) {
	var req JudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	res := s.judge.Evaluate(r.Context(), judge.Query{
		Text:      req.Query,
		SessionID: req.SessionID,
		ActorID:   req.ActorID,
		Lane:      req.Lane,
		Context:   req.Context,
	})
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, s.judge.Handle(r.Context(), req.Text, req.SessionID, req.UserID))
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.judge.ListTools(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, strconv.Itoa(status))

		s.logger.Info("served request",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.RateLimited()
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
