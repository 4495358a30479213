package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/logging"
)

// HTTPRecorder observes served requests
type HTTPRecorder interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// RequestLogger emits one http_request record per request and attaches a
// request-scoped logger to the user context. recorder may be nil.
func RequestLogger(logger *slog.Logger, recorder HTTPRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqLogger := logger
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			reqLogger = logger.With(slog.String("request_id", id))
		}
		c.SetUserContext(logging.WithLogger(c.UserContext(), reqLogger))

		err := c.Next()
		elapsed := time.Since(start)

		// Errors are rendered by the app error handler after this returns
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		logging.LogHTTPRequest(reqLogger, c.Method(), c.Path(), status,
			float64(elapsed.Microseconds())/1000,
			slog.String("ip", c.IP()),
		)
		if recorder != nil {
			recorder.ObserveHTTP(c.Method(), c.Route().Path, status, elapsed)
		}

		return err
	}
}
