package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// RequestLogConfig configures request logging.
type RequestLogConfig struct {
	Logger    *logrus.Logger
	SkipPaths []string
}

// RequestLogger logs one structured line per request.
func RequestLogger(config RequestLogConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skip := range config.SkipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		fields := logrus.Fields{
			"method":   c.Method(),
			"path":     path,
			"status":   status,
			"duration": time.Since(start).Milliseconds(),
			"ip":       c.IP(),
		}
		if id := GetClientID(c); id != "" {
			fields["client_id"] = id
		}

		entry := config.Logger.WithFields(fields)
		switch {
		case err != nil || status >= 500:
			if err != nil {
				entry = entry.WithError(err)
			}
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request handled")
		}
		return err
	}
}
