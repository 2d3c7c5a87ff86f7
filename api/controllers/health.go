package controllers

import (
	"context"
	"net/http"

	"github.com/FredZ6/cloud-project/api/responses"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports ok only when every wired dependency answers a ping.
func Healthz(logg *logger.Logger, checks ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(r.Context()); err != nil {
				if logg != nil {
					logg.Error(r.Context(), "health check failed", err)
				}
				responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
