package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

type HealthResponse struct {
	Status string `json:"status"`
}

func Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready reports 503 until every named dependency answers a ping.
func Ready(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				slog.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				Error(w, http.StatusServiceUnavailable, "not_ready", name+" unavailable")
				return
			}
		}
		JSON(w, http.StatusOK, HealthResponse{Status: "ready"})
	}
}
