package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/etruckzm/etruck-go/libs/logging"
)

// HealthCheckResponse - response structure for healthchecks
type HealthCheckResponse struct {
	BuildTime string `json:"buildTime"`
	Commit    string `json:"commit"`
	Version   string `json:"version"`
	// service status is an accumulated map of service health structures mapped on service name
	ServiceStatus map[string]interface{} `json:"serviceStatus,omitempty"`
}

// RenderJSON - helper to render a HealthCheckResponse as Json to an http.ResponseWriter
func (hcr HealthCheckResponse) RenderJSON(ctx context.Context, w http.ResponseWriter, status int) error {
	logger := logging.Logger(ctx, "handlers.HealthCheckResponse.RenderJSON")
	body, err := json.Marshal(hcr)
	if err != nil {
		return fmt.Errorf("failed to marshal response in render json: %w", err)
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Error().Err(err).Msg("failed to write response to writer")
	}
	return nil
}

// HealthChecker reports the health of a dependency
type HealthChecker func(ctx context.Context) error

// HealthCheckHandler - function which generates a health check http.HandlerFunc,
// every checker is run and a failing one turns the response into a 503
func HealthCheckHandler(version, buildTime, commit string, checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.Logger(ctx, "handlers.HealthCheckHandler")

		status := http.StatusOK
		serviceStatus := make(map[string]interface{}, len(checkers))
		for name, check := range checkers {
			if err := check(ctx); err != nil {
				logger.Warn().Err(err).Str("service", name).Msg("health check failed")
				serviceStatus[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			serviceStatus[name] = "ok"
		}

		hcr := HealthCheckResponse{
			Commit:        commit,
			BuildTime:     buildTime,
			Version:       version,
			ServiceStatus: serviceStatus,
		}
		if err := hcr.RenderJSON(ctx, w, status); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, err := w.Write([]byte("unhealthy")); err != nil {
				logger.Error().Err(err).Msg("failed to write response to writer")
			}
		}
	}
}
