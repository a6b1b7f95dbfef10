// Package httpapi exposes the HTTP control surface outside the
// websocket upgrade itself: GET /health, GET /metrics, and the
// operator-facing GET/DELETE /debug/turn-stages latency view. Grounded
// on the teacher's internal/httpapi/server.go for the chi-router/handler
// registration shape (the teacher's task/voice/onboarding REST surface
// has no counterpart here; see DESIGN.md's dropped-module list).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/antoniostano/wallace/internal/observability"
	"github.com/go-chi/chi/v5"
)

// HealthChecker is the subset of external.LLM and external.SmartHome
// this endpoint needs to report backend health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

type mqttChecker interface {
	IsConnected() bool
}

// Server hosts /health, the Prometheus /metrics scrape endpoint, and an
// operator-facing JSON snapshot of turn-stage latencies.
type Server struct {
	llm    HealthChecker
	mqtt   mqttChecker
	router chi.Router

	// Metrics is optional; nil-safe. When set, /debug/turn-stages
	// reports the in-process turn-stage latency window alongside the
	// Prometheus histograms /metrics already exposes.
	Metrics *observability.Metrics
}

// New wires the health endpoint. mqtt may be nil if the smart-home
// actuator is not configured, in which case the health report always
// reports mqtt: false.
func New(llm HealthChecker, mqtt mqttChecker) *Server {
	s := &Server{llm: llm, mqtt: mqtt, router: chi.NewRouter()}
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/debug/turn-stages", s.handleTurnStages)
	s.router.Delete("/debug/turn-stages", s.handleResetTurnStages)
	s.router.Handle("/metrics", observability.MetricsHandler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string `json:"status"`
	LLM    bool   `json:"llm"`
	MQTT   bool   `json:"mqtt"`
}

// handleHealth implements spec.md §6: GET /health -> {status, llm, mqtt}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.llm != nil {
		resp.LLM = s.llm.HealthCheck(r.Context())
	}
	if s.mqtt != nil {
		resp.MQTT = s.mqtt.IsConnected()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleTurnStages reports the rolling per-stage latency window recorded
// by the orchestrator's Metrics.ObserveTurnStage calls. Returns an empty
// snapshot if Metrics was never wired.
func (s *Server) handleTurnStages(w http.ResponseWriter, r *http.Request) {
	var snap observability.TurnStageSnapshot
	if s.Metrics != nil {
		snap = s.Metrics.SnapshotTurnStages()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// handleResetTurnStages clears the rolling latency window, letting an
// operator zero the p50/p95/p99 view after a deploy without restarting
// the process (the Prometheus histograms /metrics exposes are cumulative
// and unaffected).
func (s *Server) handleResetTurnStages(w http.ResponseWriter, r *http.Request) {
	if s.Metrics != nil {
		s.Metrics.ResetTurnStages()
	}
	w.WriteHeader(http.StatusNoContent)
}
