package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/abkit/pkg/decision"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/flags"
	"github.com/dmitrymomot/abkit/pkg/httpserver"
	"github.com/dmitrymomot/abkit/pkg/logger"
	"github.com/dmitrymomot/abkit/pkg/stats"
)

// Registry is the experiment lifecycle surface exposed over HTTP.
type Registry interface {
	Create(ctx context.Context, exp *experiment.Experiment) (*experiment.Experiment, error)
	Get(ctx context.Context, id string) (*experiment.Experiment, error)
	List(ctx context.Context, states ...experiment.State) []*experiment.Experiment
	UpdateVariants(ctx context.Context, id string, variants []experiment.Variant) (*experiment.Experiment, error)
	Start(ctx context.Context, id string) (*experiment.Experiment, error)
	Confirm(ctx context.Context, id string, action experiment.Action) (*experiment.Experiment, error)
	Reject(ctx context.Context, id string) (*experiment.Experiment, error)
	Conclude(ctx context.Context, id string, action experiment.Action) (*experiment.Experiment, error)
	Archive(ctx context.Context, id string) (*experiment.Experiment, error)
}

// Resolver evaluates a flag for one participant.
type Resolver interface {
	Resolve(ctx context.Context, flag, participantID string) (flags.Resolution, error)
}

// Assigner returns the variant a participant is bucketed into.
type Assigner interface {
	AssignVariant(ctx context.Context, experimentID, participantID string) (experiment.Variant, error)
}

// Recorder ingests metric events. The bool reports whether the event was counted.
type Recorder interface {
	Record(ctx context.Context, ev experiment.Event) (bool, error)
}

// Analyzer produces the statistical report of an experiment.
type Analyzer interface {
	Report(ctx context.Context, experimentID string) (stats.Report, error)
}

// DecisionLog exposes recent sweeper decisions.
type DecisionLog interface {
	History(experimentID string) []decision.Decision
}

// Deps are the collaborators the API serves.
type Deps struct {
	Registry  Registry
	Flags     flags.Provider
	Resolver  Resolver
	Assigner  Assigner
	Events    Recorder
	Analyzer  Analyzer
	Decisions DecisionLog
}

// Server is the HTTP API.
type Server struct {
	deps         Deps
	logger       *slog.Logger
	observer     HTTPObserver
	metrics      http.Handler
	probes       []httpserver.Probe
	probeTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver records per-route request metrics.
func WithObserver(o HTTPObserver) Option {
	return func(s *Server) { s.observer = o }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithProbes sets the readiness checks behind /health/ready.
func WithProbes(timeout time.Duration, probes ...httpserver.Probe) Option {
	return func(s *Server) {
		s.probeTimeout = timeout
		s.probes = append(s.probes, probes...)
	}
}

// New creates the API server.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		logger:       logger.Discard(),
		probeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Error: &ErrorDetail{Code: "route_not_found", Message: "route not found"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: &ErrorDetail{Code: "method_not_allowed", Message: "method not allowed"}})
	})

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(s.logger, s.probeTimeout, s.probes...))
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Get("/resolve", s.resolve)
	r.Post("/events", s.recordEvent)

	r.Route("/experiments", func(r chi.Router) {
		r.Get("/", s.listExperiments)
		r.Post("/", s.createExperiment)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getExperiment)
			r.Put("/variants", s.updateVariants)
			r.Post("/start", s.startExperiment)
			r.Post("/confirm", s.confirmExperiment)
			r.Post("/reject", s.rejectExperiment)
			r.Post("/conclude", s.concludeExperiment)
			r.Post("/archive", s.archiveExperiment)
			r.Get("/analysis", s.analysis)
			r.Get("/decisions", s.decisions)
			r.Get("/assignments/{participant}", s.assignment)
		})
	})

	r.Route("/flags", func(r chi.Router) {
		r.Get("/", s.listFlags)
		r.Post("/", s.createFlag)
		r.Get("/{name}", s.getFlag)
		r.Put("/{name}", s.updateFlag)
		r.Delete("/{name}", s.deleteFlag)
	})

	return r
}
