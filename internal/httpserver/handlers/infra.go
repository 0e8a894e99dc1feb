package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra pings every backing component and reports the overall mode.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := make(map[string]componentStatus, len(d.Checks))
		critical := make(map[string]bool, len(d.Checks))
		for _, c := range d.Checks {
			components[c.Name] = checkComponent(r.Context(), c)
			critical[c.Name] = c.Critical
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components, critical),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus, critical map[string]bool) string {
	mode := "operational"
	for name, c := range components {
		if c.OK {
			continue
		}
		// A critical component down means no view can load
		if critical[name] {
			return "critical"
		}
		mode = "degraded"
	}
	return mode
}

func checkComponent(ctx context.Context, c deps.Check) componentStatus {
	status := componentStatus{OK: true, Backend: c.Backend}
	if c.Ping == nil {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		status.OK = false
		status.Error = err.Error()
		if c.Critical {
			status.Impact = "views-unavailable"
		} else {
			status.Impact = "live-updates-disabled"
		}
	}
	return status
}
