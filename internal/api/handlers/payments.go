package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/payments"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

// CreatePaymentReference creates the reference a checkout is matched against.
func CreatePaymentReference(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref, err := svc.Payments.NewReference(c.Context(), middleware.GetClientID(c))
		if err != nil {
			return internalError(c, svc, err, "Failed to create payment reference")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"referenceId": ref,
		})
	}
}

// VerifyPayment checks a completed checkout and unlocks the paid tier.
func VerifyPayment(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := svc.Payments.Verify(c.Context(), middleware.GetClientID(c),
			c.Query("session_id"), c.Query("reference_id"))
		switch {
		case errors.Is(err, payments.ErrMissingParams):
			return badRequest(c, "Session ID and Reference ID required")
		case errors.Is(err, payments.ErrNotConfigured):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Payments are not configured",
			})
		case err != nil:
			svc.Logger.WithError(err).Error("Payment verification failed")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to verify payment",
			})
		}
		return c.JSON(result)
	}
}
