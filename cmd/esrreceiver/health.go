package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/esr-receiver/internal/config"
	"github.com/rickgao/esr-receiver/internal/metrics"
	"github.com/rickgao/esr-receiver/internal/receiver"
	"github.com/rickgao/esr-receiver/internal/relay"
	"github.com/rickgao/esr-receiver/internal/router"
	"github.com/rickgao/esr-receiver/internal/version"
	"github.com/rickgao/esr-receiver/internal/writer"
)

// linkStatus is the slice of receiver.Manager the health check reads.
type linkStatus interface {
	State() receiver.ConnectionState
	Endpoint() (receiver.Endpoint, bool)
}

type healthResponse struct {
	Status     string         `json:"status"`
	Version    version.Info   `json:"version"`
	Components map[string]any `json:"components"`
}

// newMux serves /health, metrics and, when enabled, the websocket relay.
func newMux(cfg *config.Config, link linkStatus, rt *router.Router, history *writer.ScanWriter, hub *relay.Relay, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(link, rt, history, hub))
	mux.Handle(cfg.HTTP.MetricsPath, metrics.Handler(reg))
	if hub != nil {
		mux.Handle(cfg.Relay.Path, hub)
	}
	return mux
}

// healthHandler reports "healthy" while connected, "degraded" otherwise.
// It never fails the probe: a phone out of range is expected.
func healthHandler(link linkStatus, rt *router.Router, history *writer.ScanWriter, hub *relay.Relay) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := healthResponse{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		state := link.State()
		scanner := map[string]any{"state": state.String()}
		if ep, ok := link.Endpoint(); ok {
			scanner["endpoint"] = ep.String()
		}
		health.Components["scanner"] = scanner
		if state != receiver.Connected {
			health.Status = "degraded"
		}

		if rt != nil {
			stats := rt.Stats()
			health.Components["router"] = map[string]any{
				"received":    stats.Received,
				"pending":     stats.Buffer.Count,
				"sink_errors": stats.SinkErrors,
			}
		}
		if history != nil {
			stats := history.Stats()
			health.Components["history"] = map[string]any{
				"inserts": stats.Inserts,
				"errors":  stats.Errors,
				"pending": stats.Pending,
			}
		}
		if hub != nil {
			health.Components["relay"] = map[string]any{"clients": hub.ClientCount()}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})
}
