package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe reports whether a dependency (Postgres, NATS) is reachable.
type Probe func(ctx context.Context) error

// HealthChecker tracks liveness and readiness for both the HTTP probes and
// the gRPC health service.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu     sync.RWMutex
	probes map[string]Probe
	grpc   *health.Server
}

// NewHealthChecker creates a checker that starts not ready.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		probes:    make(map[string]Probe),
	}
}

// AttachGRPC mirrors readiness into a grpc health server.
func (h *HealthChecker) AttachGRPC(srv *health.Server) {
	h.mu.Lock()
	h.grpc = srv
	h.mu.Unlock()
	h.syncGRPC()
}

// AddProbe registers a named dependency check run by /readyz.
func (h *HealthChecker) AddProbe(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// SetReady flips readiness once recovery and replay have finished.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
	h.syncGRPC()
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) syncGRPC() {
	h.mu.RLock()
	srv := h.grpc
	h.mu.RUnlock()
	if srv == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.ready.Load() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	srv.SetServingStatus("", status)
	srv.SetServingStatus("perpvault.v1.PerpVault", status)
}

// LivenessHandler always answers 200 while the process runs.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler answers 200 only when ready and every probe passes.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}

	failures := h.runProbes(r.Context())
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "degraded",
			"failures": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (h *HealthChecker) runProbes(ctx context.Context) map[string]string {
	h.mu.RLock()
	names := make([]string, 0, len(h.probes))
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		names = append(names, name)
		probes[name] = p
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for _, name := range names {
		if err := probes[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
