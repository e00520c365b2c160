// Package api exposes the health and stats endpoints of a running engine.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"netsentry/internal/model"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /healthz, /api/v1/stats and /metrics.
type Server struct {
	stats  *model.CaptureStats
	server *http.Server
}

// NewServer creates the HTTP server bound to addr.
func NewServer(addr string, stats *model.CaptureStats) *Server {
	s := &Server{stats: stats}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/stats", s.statsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs ListenAndServe in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("API server starting on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server error: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// healthHandler returns 200 while the pipeline is healthy and 503 once it
// has degraded, so external probes can flag a silently dying engine.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	status := http.StatusOK
	if !snap.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"healthy":  snap.Healthy,
		"degraded": snap.Degraded,
	})
}

// statsHandler returns the full stats snapshot as JSON.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Snapshot()); err != nil {
		log.Printf("Error encoding stats response: %v", err)
	}
}
