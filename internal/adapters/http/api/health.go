package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/physiopulse/pkg/metrics"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Stats   any    `json:"stats"`
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Stats()
	status, code := "healthy", http.StatusOK
	if !st.Started {
		status, code = "stopped", http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Version: s.version, Stats: st})
}

// metricsHandler serves whichever registry metrics.Configure installed last.
func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
