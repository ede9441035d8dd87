package httpapi

import (
	"net/http"

	"supportcore/internal/monitoring"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == monitoring.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	instances, err := s.alerts.ActiveAlerts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": instances})
}
