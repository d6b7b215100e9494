package main

import (
	"encoding/json"
	"net/http"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
	"github.com/Vinayak0723/cryptoexchange/internal/poller"
	"github.com/Vinayak0723/cryptoexchange/internal/relay"
)

// createHealthHandler creates the HTTP handler for health checks. rel may be nil.
func createHealthHandler(mgr connection.Manager, status *poller.Poller, rel *relay.Relay) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := mgr.Stats()
		health.Components["connections"] = map[string]any{
			"tracked":         stats.Connections,
			"open":            stats.Open,
			"listeners":       stats.Listeners,
			"reconnects":      stats.Reconnects,
			"exhausted":       stats.Exhausted,
			"parse_errors":    stats.ParseErrors,
			"listener_panics": stats.ListenerPanics,
			"dropped_sends":   stats.DroppedSends,
		}
		health.Components["streams"] = status.Snapshot()
		if !status.AllLive() {
			health.Status = "degraded"
		}

		if rel != nil {
			rs := rel.Stats()
			health.Components["relay"] = map[string]any{
				"received":       rs.Received,
				"published":      rs.Published,
				"pending":        rs.Pending,
				"publish_errors": rs.PublishErrors,
				"last_error":     rs.LastError,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if stats.Connections > 0 && stats.Open == 0 {
			health.Status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/connections", func(w http.ResponseWriter, r *http.Request) {
		conns := mgr.ConnStats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":       len(conns),
			"connections": conns,
		})
	})

	return mux
}
