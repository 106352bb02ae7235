// Package api exposes the intelligence engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/health-intel/internal/intel"
	"github.com/sells-group/health-intel/internal/model"
	"github.com/sells-group/health-intel/internal/resilience"
)

const maxBodyBytes = 1 << 20

// Assessor produces a snapshot for one customer.
type Assessor interface {
	Assess(ctx context.Context, c model.Customer) (*model.IntelligenceSnapshot, error)
}

// Server routes HTTP requests to an Assessor.
type Server struct {
	assessor Assessor
	metrics  http.Handler
	origins  []string
	circuits func() map[string]resilience.CircuitState
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithCircuitStates reports per-provider breaker states on /healthz.
func WithCircuitStates(fn func() map[string]resilience.CircuitState) Option {
	return func(s *Server) { s.circuits = fn }
}

// WithCORSOrigins sets the allowed CORS origins. Default: any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server.
func New(a Assessor, opts ...Option) *Server {
	s := &Server{assessor: a, origins: []string{"*"}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/assess", s.handleAssess)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

// handleHealth always answers 200 while the process serves. An open or
// half-open circuit marks the status degraded.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.circuits != nil {
		states := s.circuits()
		resp.Circuits = make(map[string]string, len(states))
		for name, st := range states {
			resp.Circuits[name] = st.String()
			if st != resilience.CircuitClosed {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var c model.Customer
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := s.assessor.Assess(r.Context(), c)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("api: assess failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("domain", c.Domain),
				zap.Error(err),
			)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidCustomer):
		return http.StatusBadRequest
	case errors.Is(err, intel.ErrAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
