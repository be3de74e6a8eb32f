package server

import (
	"context"
	"net/http"
	"time"
)

// ComponentStatus is the state of one dependency.
type ComponentStatus string

const (
	ComponentStatusUp   ComponentStatus = "up"
	ComponentStatusDown ComponentStatus = "down"
)

type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms"`
}

type readiness struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Commit     string                     `json:"commit,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// handleLive is the liveness probe; it only proves the process serves HTTP.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady checks the database and the blob backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := readiness{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Build.Version,
		Commit:     s.cfg.Build.Commit,
		Components: make(map[string]ComponentHealth, 2),
	}
	if s.cfg.DB != nil {
		resp.Components["database"] = checkComponent(ctx, s.cfg.DB.PingContext)
	}
	if s.cfg.Store != nil {
		resp.Components["storage"] = checkComponent(ctx, s.cfg.Store.Check)
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != ComponentStatusUp {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func checkComponent(ctx context.Context, check func(context.Context) error) ComponentHealth {
	start := time.Now()
	err := check(ctx)
	h := ComponentHealth{
		Status:    ComponentStatusUp,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		h.Status = ComponentStatusDown
		h.Message = err.Error()
	}
	return h
}
