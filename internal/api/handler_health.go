package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const readyTimeout = 3 * time.Second

// Pinger is satisfied by every storage.ObjectStore and by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	backends map[string]Pinger
	logger   *slog.Logger
}

func NewHealthHandler(backends map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{backends: backends, logger: logger}
}

type backendStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type readyzResponse struct {
	Status   string                   `json:"status"`
	Backends map[string]backendStatus `json:"backends,omitempty"`
}

// Livez reports ok whenever the process can serve HTTP.
func (h *HealthHandler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz pings every backend concurrently. Any failure makes the service
// unready.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		resp = readyzResponse{Status: "ok"}
	)
	if len(h.backends) > 0 {
		resp.Backends = make(map[string]backendStatus, len(h.backends))
	}
	for name, p := range h.backends {
		wg.Go(func() {
			start := time.Now()
			err := p.Ping(ctx)
			st := backendStatus{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				st.Status = "error"
				st.Error = err.Error()
			}
			mu.Lock()
			resp.Backends[name] = st
			if err != nil {
				resp.Status = "unavailable"
			}
			mu.Unlock()
		})
	}
	wg.Wait()

	if resp.Status != "ok" {
		h.logger.Warn("readiness check failed", "backends", resp.Backends)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
