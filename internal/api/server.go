// Package api serves computed stage views and accepts operator actions over
// HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /stories
//	GET  /stories/{id}/stages
//	POST /stories/{id}/stages/{stage}/actions/{action}
//	GET  /metrics
//
// Views are computed per request; nothing is cached or pushed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storyflow/internal/lifecycle"
	"storyflow/internal/logging"
	"storyflow/internal/metrics"
	"storyflow/internal/router"
	"storyflow/internal/snapshot"
)

// Projector computes one story's projection.
type Projector interface {
	Project(ctx context.Context, storyID string) (lifecycle.Projection, error)
}

// Dispatcher performs operator actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req lifecycle.Request) (lifecycle.Result, error)
}

// StoryLister enumerates known stories.
type StoryLister interface {
	List() ([]string, error)
}

// Server is the HTTP API.
type Server struct {
	projector  Projector
	dispatcher Dispatcher
	lister     StoryLister

	gatherer prometheus.Gatherer
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// NewServer creates a [Server]. dispatcher may be nil, in which case action
// requests fail with 503.
func NewServer(projector Projector, dispatcher Dispatcher, lister StoryLister) *Server {
	return &Server{
		projector:  projector,
		dispatcher: dispatcher,
		lister:     lister,
		logger:     zap.NewNop(),
	}
}

// SetMetrics exposes g on /metrics and records action counts on r.
func (s *Server) SetMetrics(g prometheus.Gatherer, r *metrics.Recorder) {
	s.gatherer = g
	s.metrics = r
}

// SetLogger replaces the no-op logger.
func (s *Server) SetLogger(l *zap.Logger) {
	s.logger = logging.OrNop(l)
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/stories", s.handleStories).Methods(http.MethodGet)
	r.HandleFunc("/stories/{id}/stages", s.handleStages).Methods(http.MethodGet)
	r.HandleFunc("/stories/{id}/stages/{stage}/actions/{action}", s.handleAction).Methods(http.MethodPost)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// HTTPServer wraps the router in an [http.Server] bound to addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		writeError(w, http.StatusServiceUnavailable, "story listing is not configured")
		return
	}
	ids, err := s.lister.List()
	if err != nil {
		s.logger.Error("failed to list stories", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StoryListResponse{Stories: make([]StoryResponse, 0, len(ids))}
	for _, id := range ids {
		p, err := s.projector.Project(r.Context(), id)
		if err != nil {
			resp.Errors = append(resp.Errors, StoryError{StoryID: id, Error: err.Error()})
			continue
		}
		resp.Stories = append(resp.Stories, NewStoryResponse(p, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.projector.Project(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStoryResponse(p, true))
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "actions are not configured")
		return
	}
	vars := mux.Vars(r)

	var body ActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := s.dispatcher.Dispatch(r.Context(), lifecycle.Request{
		StoryID: vars["id"],
		Stage:   vars["stage"],
		Action:  vars["action"],
		Actor:   body.Actor,
		Detail:  body.Detail,
	})
	s.metrics.ObserveAction(vars["action"], err)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.logger.Info("action dispatched",
		zap.String("story", vars["id"]),
		zap.String("stage", string(res.Mutation.Stage)),
		zap.String("action", string(res.Mutation.Action)))

	out := ActionResultResponse{
		Action:   string(res.Mutation.Action),
		Stage:    string(res.Mutation.Stage),
		Mutation: res.Mutation.Kind.String(),
	}
	if res.Event != nil {
		out.EventID = res.Event.ID
	}
	writeJSON(w, http.StatusAccepted, out)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, snapshot.ErrStoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrUnknownStage),
		errors.Is(err, router.ErrUnknownAction),
		errors.Is(err, router.ErrWrongStage):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNoBackend):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
