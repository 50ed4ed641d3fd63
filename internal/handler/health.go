package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/erm/internal/middleware"
	"github.com/deppfellow/erm/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is a dependency the health check can reach.
type Pinger func(ctx context.Context) error

// HealthHandler reports whether the API and its dependencies respond.
type HealthHandler struct {
	Handler
	database Pinger
	redis    Pinger
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	h := &HealthHandler{Handler: NewHandler(s)}
	if s.DB != nil {
		h.database = s.DB.Pool.Ping
	}
	if s.Redis != nil {
		h.redis = func(ctx context.Context) error { return s.Redis.Ping(ctx).Err() }
	}
	return h
}

type HealthCheck struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Environment string                 `json:"environment"`
	Checks      map[string]HealthCheck `json:"checks"`
}

// CheckHealth answers 503 when the database is down. A Redis outage only
// degrades the service: logins skip throttling and the schema cache reads
// through to Postgres.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Environment: h.server.Config.Primary.Env,
		Checks:      make(map[string]HealthCheck),
	}

	status := http.StatusOK
	if h.database != nil {
		check := h.ping(c.Request().Context(), logger, "database", h.database)
		response.Checks["database"] = check
		if check.Error != "" {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	if h.redis != nil {
		check := h.ping(c.Request().Context(), logger, "redis", h.redis)
		response.Checks["redis"] = check
		if check.Error != "" && status == http.StatusOK {
			response.Status = "degraded"
		}
	}

	logger.Debug().
		Str("status", response.Status).
		Dur("total_duration", time.Since(start)).
		Msg("health check finished")

	if err := c.JSON(status, response); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}
	return nil
}

func (h *HealthHandler) ping(ctx context.Context, logger zerolog.Logger, name string, ping Pinger) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	elapsed := time.Since(start)

	if err == nil {
		return HealthCheck{Status: "healthy", ResponseTime: elapsed.String()}
	}

	logger.Error().
		Err(err).
		Str("check_type", name).
		Dur("response_time", elapsed).
		Msg("health check failed")

	if h.server.LoggerService != nil && h.server.LoggerService.GetApplication() != nil {
		h.server.LoggerService.GetApplication().RecordCustomEvent("HealthCheckError", map[string]interface{}{
			"check_type":       name,
			"operation":        "health_check",
			"error_type":       name + "_unhealthy",
			"response_time_ms": elapsed.Milliseconds(),
			"error_message":    err.Error(),
		})
	}

	return HealthCheck{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
}
