package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func clientOrIP(prefix string) func(c *fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if id := GetClientID(c); id != "" {
			return fmt.Sprintf("%s:client:%s", prefix, id)
		}
		return fmt.Sprintf("%s:ip:%s", prefix, c.IP())
	}
}

// APIRateLimit limits requests per client, or per IP before authentication.
func APIRateLimit(max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   expiration,
		KeyGenerator: clientOrIP("api"),
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		},
	})
}

// RegistrationRateLimit limits client token issuance per IP.
func RegistrationRateLimit() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Hour,
		KeyGenerator: func(c *fiber.Ctx) string {
			return fmt.Sprintf("register:%s", c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many registrations. Please try again later.",
			})
		},
	})
}

// ChatRateLimit bounds model calls per client independently of the
// free-tier prompt counters.
func ChatRateLimit() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          30,
		Expiration:   1 * time.Minute,
		KeyGenerator: clientOrIP("chat"),
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many chat requests. Please slow down.",
			})
		},
	})
}
