package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
	"github.com/travelrizz/travelrizz-backend/internal/stage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// GetStage returns the client's current planning stage.
func GetStage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current, err := svc.Stages.Current(c.Context(), middleware.GetClientID(c))
		if err != nil {
			return internalError(c, svc, err, "Failed to load stage")
		}
		return c.JSON(fiber.Map{
			"stage": current,
			"name":  stage.Name(current),
		})
	}
}

// ValidateStage decides whether a transition is allowed. Without
// currentStage the persisted stage is used. With "advance" set, an admitted
// transition is also persisted.
func ValidateStage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			CurrentStage *int          `json:"currentStage"`
			NextStage    int           `json:"nextStage"`
			Details      *trip.Details `json:"details"`
			Advance      bool          `json:"advance"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		clientID := middleware.GetClientID(c)

		var details trip.Details
		if req.Details != nil {
			details = *req.Details
		} else {
			d, err := svc.Trips.Get(c.Context(), clientID)
			if err != nil {
				return internalError(c, svc, err, "Failed to load trip details")
			}
			details = d
		}

		var (
			decision stage.Decision
			err      error
		)
		if req.Advance {
			decision, err = svc.Stages.Advance(c.Context(), clientID, req.NextStage, details)
		} else {
			var current int
			if req.CurrentStage != nil {
				current = *req.CurrentStage
			} else if current, err = svc.Stages.Current(c.Context(), clientID); err != nil {
				return internalError(c, svc, err, "Failed to load stage")
			}
			decision, err = svc.Stages.Validate(c.Context(), clientID, current, req.NextStage, details)
		}
		if err != nil {
			return internalError(c, svc, err, "Failed to validate stage")
		}

		resp := fiber.Map{
			"decision": decision,
		}
		if decision.UpgradeRequired {
			resp["message"] = stage.UpgradeMessage
		}
		return c.JSON(resp)
	}
}
