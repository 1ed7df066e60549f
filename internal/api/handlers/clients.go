package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

// Health reports liveness and the state of every upstream API.
func Health(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"service":   "travel-planner",
			"upstreams": svc.Health.Snapshot(),
		})
	}
}

// RegisterClient issues a token naming a fresh client scope. The token is
// returned in the body and also set as an HTTP-only cookie.
func RegisterClient(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID, token, err := svc.Tokens.Issue()
		if err != nil {
			return internalError(c, svc, err, "Failed to issue client token")
		}

		_ = svc.Audit.Log(c.Context(), audit.NewEvent(audit.EventClientRegister, clientID).
			With("ip", c.IP()).
			With("user_agent", c.Get(fiber.HeaderUserAgent)))

		expires := time.Now().Add(svc.Config.Auth.TokenTTL)
		c.Cookie(&fiber.Cookie{
			Name:     middleware.TokenCookie,
			Value:    token,
			Expires:  expires,
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"clientId":  clientID,
			"token":     token,
			"expiresAt": expires,
		})
	}
}

// GetActivity lists the client's recent audit events.
func GetActivity(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		events, err := svc.Audit.ClientEvents(c.Context(), middleware.GetClientID(c), limit)
		if err != nil {
			return internalError(c, svc, err, "Failed to load activity")
		}
		return c.JSON(fiber.Map{
			"events": events,
		})
	}
}
