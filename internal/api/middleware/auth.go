package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/auth"
)

// TokenCookie carries the client token for browser clients.
const TokenCookie = "client_token"

const clientIDKey = "client_id"

// TokenValidator validates client tokens.
type TokenValidator interface {
	Validate(token string) (*auth.ClientClaims, error)
}

// ClientRequired rejects requests without a valid client token. The token
// is read from the Authorization header, the client_token cookie, or (for
// WebSocket upgrades) the token query parameter.
func ClientRequired(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Cookies(TokenCookie)
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Client token required",
			})
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			msg := "Invalid client token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Client token expired"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": msg,
			})
		}

		c.Locals(clientIDKey, claims.ClientID)
		return c.Next()
	}
}

// GetClientID returns the authenticated client, or "" if none.
func GetClientID(c *fiber.Ctx) string {
	if id, ok := c.Locals(clientIDKey).(string); ok {
		return id
	}
	return ""
}
