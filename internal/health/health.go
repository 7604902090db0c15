// Package health exposes pipeline liveness/readiness/metrics over HTTP,
// adapted from the teacher's Orion HealthCheck/LivenessHandler family.
package health

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pathfinder-nav/pathfinder/internal/types"
)

// Status is the pipeline's current health snapshot.
type Status struct {
	State            string  `json:"state"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds    int64   `json:"uptime_seconds"`
	FramesConsumed   uint64  `json:"frames_consumed"`
	FramesDropped    uint64  `json:"frames_dropped"`
	DropRate         float64 `json:"drop_rate"`
	FPS              float64 `json:"fps"`
	LastVisionMS     float64 `json:"last_vision_ms"`
	GroundConfidence float64 `json:"ground_confidence"`
	IsPathBlocked    bool    `json:"is_path_blocked"`
	StreamConnected  bool    `json:"stream_connected"`
	AudioConnected   bool    `json:"audio_connected"`
}

// Source supplies the live values a health check reports. The pipeline
// driver implements this.
type Source interface {
	SensorStats() types.SensorStats
	GroundConfidence() float64
	IsPathBlocked() bool
	StreamConnected() bool
	AudioConnected() bool
}

// Server runs the /health, /readiness, /metrics endpoints (spec §6 CLI
// surface implies an operable service; this is the ambient health stack
// the teacher's Orion binary carries for every long-running worker).
type Server struct {
	src     Source
	started time.Time

	mu                     sync.Mutex
	consecutiveLowConfidence int
}

// New constructs a health Server bound to a stats Source.
func New(src Source) *Server {
	return &Server{src: src, started: time.Now()}
}

// Check computes the current Status. Ground confidence below 0.3 on three
// or more consecutive calls to Check (each /readiness or /metrics request)
// is reported as degraded; the streak counts health checks, not pipeline
// frames, so frames processed between two checks are not counted.
func (s *Server) Check() Status {
	stats := s.src.SensorStats()
	groundConf := s.src.GroundConfidence()

	s.mu.Lock()
	if groundConf < 0.3 {
		s.consecutiveLowConfidence++
	} else {
		s.consecutiveLowConfidence = 0
	}
	lowConfidenceStreak := s.consecutiveLowConfidence
	s.mu.Unlock()

	var dropRate float64
	total := stats.FramesConsumed + stats.FramesDropped
	if total > 0 {
		dropRate = float64(stats.FramesDropped) / float64(total)
	}

	state := "healthy"
	if s.src.IsPathBlocked() {
		state = "degraded"
	}
	if lowConfidenceStreak >= 3 {
		state = "degraded"
	}
	if !s.src.StreamConnected() && !s.src.AudioConnected() {
		state = "unhealthy"
	}

	return Status{
		State:            state,
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
		FramesConsumed:   stats.FramesConsumed,
		FramesDropped:    stats.FramesDropped,
		DropRate:         dropRate,
		FPS:              stats.FPS,
		LastVisionMS:     stats.LastVisionMS,
		GroundConfidence: groundConf,
		IsPathBlocked:    s.src.IsPathBlocked(),
		StreamConnected:  s.src.StreamConnected(),
		AudioConnected:   s.src.AudioConnected(),
	}
}

// LivenessHandler handles /health: 200 iff the process can run this code.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

// ReadinessHandler handles /readiness: full Status, 503 when unhealthy.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := s.Check()

	code := http.StatusOK
	if status.State == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// MetricsHandler handles /metrics as a minimal Prometheus-style exposition.
func (s *Server) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	status := s.Check()

	fmt.Fprintf(w, "pathfinder_uptime_seconds %d\n", status.UptimeSeconds)
	fmt.Fprintf(w, "pathfinder_frames_consumed %d\n", status.FramesConsumed)
	fmt.Fprintf(w, "pathfinder_frames_dropped %d\n", status.FramesDropped)
	fmt.Fprintf(w, "pathfinder_drop_rate %f\n", status.DropRate)
	fmt.Fprintf(w, "pathfinder_fps %f\n", status.FPS)
	fmt.Fprintf(w, "pathfinder_ground_confidence %f\n", status.GroundConfidence)
}

// Start runs the HTTP server on the given port in a background goroutine.
func (s *Server) Start(port string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/readiness", s.ReadinessHandler)
	mux.HandleFunc("/metrics", s.MetricsHandler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server", "port", port, "endpoints", []string{"/health", "/readiness", "/metrics"})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return srv
}
