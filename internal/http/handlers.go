package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady checks that the backend answers and reports cache sizes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.svc.Ping(ctx); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed", "check", "database", "error", err)
	} else {
		checks["database"] = "ok"
	}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	sessions := s.sessions.SessionStats()
	checks["sessions"] = map[string]any{
		"entries":   sessions.Size,
		"evictions": sessions.Evictions,
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request, security and session counters in a
// Prometheus-like text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateMetrics := s.limiter.GetMetrics()
	sessions := s.sessions.SessionStats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_request_duration_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("security_suspicious_requests_total", "Requests flagged as suspicious", "counter", securityMetrics.SuspiciousRequests)
	metric("security_blocked_requests_total", "Requests rejected by method", "counter", securityMetrics.BlockedRequests)
	metric("rate_limit_hits_total", "Auth form posts rejected by the rate limiter", "counter", rateMetrics.TotalHits)
	metric("rate_limit_active_clients", "Clients tracked by the rate limiter", "gauge", rateMetrics.ClientCount)
	metric("sessions_active", "Sessions held in the session cache", "gauge", int64(sessions.Size))
	metric("session_cache_hits_total", "Session cache hits", "counter", sessions.Hits)
	metric("session_cache_misses_total", "Session cache misses", "counter", sessions.Misses)
	metric("uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.startedAt).Seconds()))
}
