package main

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/provisio/core/logger"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

type statusReport struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int               `json:"uptimeSeconds"`
	Collaborators map[string]string `json:"collaborators"`
}

// newStatusHandler reports the build version and the reachability of each
// collaborator. Checks run with a short deadline so a hanging collaborator
// degrades the report instead of the endpoint, and any failure turns the
// response into a 503.
func newStatusHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		report := statusReport{
			Status:        "ok",
			Version:       version,
			UptimeSeconds: int(time.Since(startedAt).Seconds()),
			Collaborators: map[string]string{},
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.FromContext(r.Context()).WithError(err).Errorf("Error 4352: collaborator %s unreachable", name)
				report.Collaborators[name] = err.Error()
				report.Status = "degraded"
			} else {
				report.Collaborators[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// healthHandler is pure liveness, it only confirms the process is serving.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
}
