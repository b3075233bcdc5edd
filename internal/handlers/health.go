package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessPinger reports whether a backing dependency is reachable.
type ReadinessPinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo identifies the running binary in health payloads.
type BuildInfo struct {
	Version   string
	StartedAt time.Time
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	clock   func() time.Time
	pingers map[string]ReadinessPinger
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build:   BuildInfo{StartedAt: time.Now()},
		clock:   time.Now,
		pingers: map[string]ReadinessPinger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithHealthBuildInfo sets the build metadata reported by the probes.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the time source, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthPinger registers a named dependency checked by /readyz.
func WithHealthPinger(name string, pinger ReadinessPinger) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && pinger != nil {
			h.pingers[name] = pinger
		}
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz pings every registered dependency and reports 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string, len(h.pingers))
	healthy := true
	for name, pinger := range h.pingers {
		if err := pinger.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}
