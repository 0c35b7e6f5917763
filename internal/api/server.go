// =============================================================================
// HTTP API SERVER - REST INTERFACE FOR THE FETCH ORDER
// =============================================================================
//
// WHAT IS THIS?
// An admin API over a fetch Session. Operators and test harnesses use it to
// inspect the fetch order, push a new assignment and drive rotations by
// hand.
//
// ENDPOINT OVERVIEW:
//
//   PARTITIONS
//   GET    /partitions                                   Ordered partitions
//   GET    /partitions/keys                              Partition set (unordered)
//   DELETE /partitions                                   Clear the fetch order
//   GET    /partitions/{topic}/{partition}               One partition's state
//   DELETE /partitions/{topic}/{partition}               Revoke a partition
//   POST   /partitions/{topic}/{partition}/served        Record data, rotate
//   POST   /partitions/{topic}/{partition}/skip          Rotate without data
//
//   ASSIGNMENT
//   PUT    /assignment                                   Replace all partitions
//
//   PLANNING
//   GET    /plan                                         Next fetch plan
//
//   ADMIN
//   GET    /health                                       Health check
//   GET    /healthz, /readyz, /livez                     Probes
//   GET    /version                                      Build information
//   GET    /metrics                                      Prometheus metrics
//
// =============================================================================

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fetchq/internal/fetcher"
	"fetchq/internal/metrics"
	"fetchq/pkg/fetchorder"
)

// =============================================================================
// API SERVER
// =============================================================================

// Server is the HTTP API server for a fetch session.
type Server struct {
	session    *fetcher.Session
	metrics    *metrics.Registry
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	health     *HealthState
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Logger       *slog.Logger
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server. reg may be nil, in which case
// /metrics is not mounted.
func NewServer(session *fetcher.Session, reg *metrics.Registry, config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	s := &Server{
		session: session,
		metrics: reg,
		router:  r,
		logger:  logger.With("component", "api"),
		health:  NewHealthState(),
	}
	s.health.AddCheck("assignment", s.checkAssignment)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// registerRoutes sets up all API endpoints using chi router.
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Get("/livez", s.handleLivez)
	s.router.Get("/version", s.handleVersion)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Put("/assignment", s.putAssignment)
	s.router.Get("/plan", s.getPlan)

	s.router.Route("/partitions", func(r chi.Router) {
		r.Get("/", s.listPartitions)
		r.Delete("/", s.clearPartitions)
		r.Get("/keys", s.listPartitionKeys)

		r.Route("/{topic}/{partition}", func(r chi.Router) {
			r.Get("/", s.getPartition)
			r.Delete("/", s.revokePartition)
			r.Post("/served", s.markServed)
			r.Post("/skip", s.skipPartition)
		})
	})
}

// Health returns the probe state, so callers can flip readiness.
func (s *Server) Health() *HealthState {
	return s.health
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting HTTP API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop marks the server not ready and gracefully shuts it down.
func (s *Server) Stop(ctx context.Context) error {
	s.health.SetReady(false)
	s.logger.Info("shutting down HTTP API server")
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// AssignmentEntry is one partition of a PUT /assignment body.
type AssignmentEntry struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
}

// AssignmentRequest is the body of PUT /assignment. Order matters: topics
// are grouped in the order they first appear.
type AssignmentRequest struct {
	Partitions []AssignmentEntry `json:"partitions"`
}

// ServedRequest is the body of POST .../served.
type ServedRequest struct {
	NextOffset int64 `json:"next_offset"`
}

// PartitionsResponse lists partitions in fetch order.
type PartitionsResponse struct {
	Count      int                     `json:"count"`
	Partitions []fetcher.PartitionView `json:"partitions"`
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) listPartitions(w http.ResponseWriter, r *http.Request) {
	views := s.session.Partitions()
	s.writeJSON(w, http.StatusOK, PartitionsResponse{Count: len(views), Partitions: views})
}

func (s *Server) listPartitionKeys(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.PartitionSet())
}

func (s *Server) clearPartitions(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getPartition(w http.ResponseWriter, r *http.Request) {
	tp, ok := s.topicPartition(w, r)
	if !ok {
		return
	}

	view, found := s.session.Position(tp)
	if !found {
		s.errorResponse(w, http.StatusNotFound, "partition not assigned: "+tp.String())
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) revokePartition(w http.ResponseWriter, r *http.Request) {
	tp, ok := s.topicPartition(w, r)
	if !ok {
		return
	}

	if !s.session.Revoke(tp) {
		s.errorResponse(w, http.StatusNotFound, "partition not assigned: "+tp.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markServed(w http.ResponseWriter, r *http.Request) {
	tp, ok := s.topicPartition(w, r)
	if !ok {
		return
	}

	var req ServedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.session.Served(tp, req.NextOffset); err != nil {
		s.sessionError(w, err)
		return
	}

	view, _ := s.session.Position(tp)
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) skipPartition(w http.ResponseWriter, r *http.Request) {
	tp, ok := s.topicPartition(w, r)
	if !ok {
		return
	}

	if err := s.session.Skip(tp); err != nil {
		s.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	a := fetchorder.NewAssignment[int64]()
	for _, e := range req.Partitions {
		tp := fetchorder.TopicPartition{Topic: e.Topic, Partition: e.Partition}
		if _, dup := a.Get(tp); dup {
			s.errorResponse(w, http.StatusBadRequest, tp.String()+" assigned more than once")
			return
		}
		a.Put(tp, e.Offset)
	}

	if err := s.session.Assign(a); err != nil {
		s.sessionError(w, err)
		return
	}

	views := s.session.Partitions()
	s.writeJSON(w, http.StatusOK, PartitionsResponse{Count: len(views), Partitions: views})
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Plan())
}

// =============================================================================
// HELPERS
// =============================================================================

// topicPartition parses {topic}/{partition} URL params, writing a 400 on
// failure.
func (s *Server) topicPartition(w http.ResponseWriter, r *http.Request) (fetchorder.TopicPartition, bool) {
	topic := chi.URLParam(r, "topic")
	partition, err := strconv.ParseInt(chi.URLParam(r, "partition"), 10, 32)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid partition: "+chi.URLParam(r, "partition"))
		return fetchorder.TopicPartition{}, false
	}

	tp, err := fetchorder.NewTopicPartition(topic, int32(partition))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return fetchorder.TopicPartition{}, false
	}
	return tp, true
}

// sessionError maps session errors to HTTP statuses.
func (s *Server) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fetcher.ErrNotAssigned):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fetcher.ErrInvalidOffset),
		errors.Is(err, fetchorder.ErrInvalidPartition),
		errors.Is(err, fetchorder.ErrNilState):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("session operation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
