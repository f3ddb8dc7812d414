// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

// Package ops provides the operational HTTP listener using Chi router.
//
// The listener exposes exactly two endpoints: GET /healthz for health
// checks and GET /metrics for Prometheus scrapes. Recommendations are
// not served over HTTP; consumers embed the engine directly.
package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessellon/affinity/internal/logging"
	"github.com/tessellon/affinity/internal/recommend"
)

// StatusReporter is the engine surface the health endpoint reads.
type StatusReporter interface {
	Status() recommend.Status
}

// Router serves the operational endpoints.
type Router struct {
	engine    StatusReporter
	version   string
	startTime time.Time
}

// NewRouter creates the ops router around the given engine.
func NewRouter(engine StatusReporter, version string) *Router {
	return &Router{
		engine:    engine,
		version:   version,
		startTime: time.Now(),
	}
}

// healthResponse is the GET /healthz payload.
type healthResponse struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Engine        recommend.Status `json:"engine"`
}

// Handler builds the HTTP handler. Exactly two routes are registered;
// everything else is a 404.
func (ro *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", ro.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// healthz reports process and model state. The response is always 200:
// a daemon waiting for its first training run is a live process, the
// body says whether it can serve personalized results yet.
func (ro *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	status := ro.engine.Status()

	state := "healthy"
	if !status.Trained {
		state = "degraded"
	}

	respondJSON(w, http.StatusOK, healthResponse{
		Status:        state,
		Version:       ro.version,
		UptimeSeconds: time.Since(ro.startTime).Seconds(),
		Engine:        status,
	})
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
