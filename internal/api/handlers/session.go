package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// CreateSession starts a new planning session, optionally seeded with trip details.
func CreateSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Details *trip.Details `json:"details"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid request body")
			}
		}
		if req.Details != nil {
			if err := req.Details.Validate(); err != nil {
				return badRequest(c, err.Error())
			}
		}

		sess, err := svc.Sessions.Initialize(c.Context(), middleware.GetClientID(c), req.Details)
		if err != nil {
			return internalError(c, svc, err, "Failed to create session")
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	}
}

// GetSession checks validity, refreshes activity, and returns the session
// together with the expiry warning flag.
func GetSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := middleware.GetClientID(c)

		status, err := svc.Sessions.CheckWithWarning(c.Context(), clientID)
		if err != nil {
			return internalError(c, svc, err, "Failed to check session")
		}
		if !status.IsValid {
			return c.JSON(fiber.Map{
				"status":  status,
				"session": nil,
			})
		}

		sess, err := svc.Sessions.Get(c.Context(), clientID)
		if err != nil {
			return internalError(c, svc, err, "Failed to load session")
		}
		return c.JSON(fiber.Map{
			"status":  status,
			"session": sess,
		})
	}
}

// DeleteSession ends the session and clears every stored planning value.
func DeleteSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.ResetClient(c.Context(), middleware.GetClientID(c)); err != nil {
			return internalError(c, svc, err, "Failed to clear session")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
