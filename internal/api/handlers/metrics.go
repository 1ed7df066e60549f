package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

// GetMetrics returns the client's usage counters.
func GetMetrics(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := svc.Metrics.Get(c.Context(), middleware.GetClientID(c))
		if err != nil {
			return internalError(c, svc, err, "Failed to load metrics")
		}
		return c.JSON(m)
	}
}

// CheckLimits reports the prompt ceilings for a stage without counting anything.
// The stage defaults to the client's current stage.
func CheckLimits(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := middleware.GetClientID(c)

		stage := c.QueryInt("stage", 0)
		if stage == 0 {
			current, err := svc.Stages.Current(c.Context(), clientID)
			if err != nil {
				return internalError(c, svc, err, "Failed to load stage")
			}
			stage = current
		}
		if stage < 1 || stage > 5 {
			return badRequest(c, "stage must be between 1 and 5")
		}

		limits, err := svc.Metrics.CheckLimits(c.Context(), clientID, stage)
		if err != nil {
			return internalError(c, svc, err, "Failed to check limits")
		}
		policy := svc.Metrics.Policy()
		return c.JSON(fiber.Map{
			"stage":           stage,
			"limits":          limits,
			"maxStagePrompts": policy.MaxStagePrompts,
			"maxTotalPrompts": policy.MaxTotalPrompts,
		})
	}
}
