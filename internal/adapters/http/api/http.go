// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/physiopulse/internal/adapters/http/swagger"
	service "github.com/okian/physiopulse/internal/app"
	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/pkg/logger"
)

const (
	defaultUploadDir   = "uploads"
	defaultMaxUploadMB = 100
	multipartMemory    = 8 << 20
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	Submit(ctx context.Context, sub service.Submission) (model.Analysis, bool, error)
	Analyze(ctx context.Context, sub service.Submission) (model.Analysis, error)
	Get(ctx context.Context, id string) (model.Analysis, error)
	List(ctx context.Context, filter model.Filter, limit, offset int) (service.Page, error)
	ArtifactPath(ctx context.Context, id, kind string) (string, error)
	Stats() service.Stats
}

// Server wires HTTP routes for the analysis API.
type Server struct {
	deps        Dependencies
	uploadDir   string
	maxUploadMB int
	version     string
	logger      logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithUploadDir sets where uploaded videos are stored.
func WithUploadDir(dir string) Option {
	return func(s *Server) {
		if dir != "" {
			s.uploadDir = dir
		}
	}
}

// WithMaxUploadMB bounds the accepted upload size.
func WithMaxUploadMB(mb int) Option {
	return func(s *Server) {
		if mb > 0 {
			s.maxUploadMB = mb
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:        deps,
		uploadDir:   defaultUploadDir,
		maxUploadMB: defaultMaxUploadMB,
		version:     "dev",
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("http")
	return s
}

// Handler returns the router serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	s.Register(r)
	swagger.Register(r)
	return r
}

// Register attaches the API routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metricsHandler())
	r.Get("/exercises", s.handleExercises)

	r.Post("/analyze", s.handleAnalyze)
	r.Route("/analyses", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/download/{kind}", s.handleDownload)
	})
}

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	AnalysisID string `json:"analysis_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err to a status and logs server-side failures.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, analysisID string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error(), AnalysisID: analysisID})
}
