package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck checks one backing store of the session layer.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse is returned by /healthz and /readyz. Checks lists each store as "ok" or
// "unavailable"; stores disabled in config are absent.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandlers serves liveness and readiness.
type HealthHandlers struct {
	Checks []ReadinessCheck
	Logger *slog.Logger
}

// Live reports that the process serves requests.
// GET|HEAD /healthz.
func (h *HealthHandlers) Live(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready runs every store check. A failing revocation store makes the gateway deny protected
// requests, so it takes the instance out of rotation.
// GET|HEAD /readyz.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			h.logger().WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeHealth(w, r, status, resp)
}

func (h *HealthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeHealth(w http.ResponseWriter, r *http.Request, status int, resp HealthResponse) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, resp)
}
