package handlers

import (
	"net/http"
	"time"

	"github.com/caskfs/caskfs/pkg/registry"
	"github.com/caskfs/caskfs/pkg/vault"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	registry  *registry.Registry
	startedAt time.Time
}

// NewHealthHandler creates a new health handler. The registry may be nil, in
// which case readiness reports unhealthy.
func NewHealthHandler(registry *registry.Registry) *HealthHandler {
	return &HealthHandler{registry: registry, startedAt: time.Now()}
}

// Liveness handles GET /health. It succeeds whenever the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service":    "caskfs",
		"started_at": h.startedAt.UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
	}))
}

// Readiness handles GET /health/ready. It checks that the vault registry is
// initialized and reports vault counts.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("vault registry not initialized"))
		return
	}

	statuses, err := h.registry.List()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("vault registry unavailable: "+err.Error()))
		return
	}

	var unlocked, mounted int
	for _, st := range statuses {
		if st.Unlocked {
			unlocked++
		}
		if st.State == vault.StateMounted {
			mounted++
		}
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"vaults":   len(statuses),
		"unlocked": unlocked,
		"mounted":  mounted,
	}))
}
