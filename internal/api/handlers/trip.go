package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// GetTrip returns the stored trip details, empty if none were submitted.
func GetTrip(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.Trips.Get(c.Context(), middleware.GetClientID(c))
		if err != nil {
			return internalError(c, svc, err, "Failed to load trip details")
		}
		return c.JSON(d)
	}
}

// PutTrip replaces the trip details with a submitted form.
func PutTrip(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var d trip.Details
		if err := c.BodyParser(&d); err != nil {
			return badRequest(c, "Invalid request body")
		}
		clientID := middleware.GetClientID(c)

		// A form submission starts a session if none is running.
		if _, _, err := svc.Sessions.EnsureValid(c.Context(), clientID, &d); err != nil {
			return internalError(c, svc, err, "Failed to start session")
		}

		saved, err := svc.Trips.Put(c.Context(), clientID, d)
		if err != nil {
			return badRequest(c, err.Error())
		}
		return c.JSON(saved)
	}
}

// PatchTrip applies a partial update, as produced by selector components.
func PatchTrip(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p trip.Patch
		if err := c.BodyParser(&p); err != nil {
			return badRequest(c, "Invalid request body")
		}
		saved, err := svc.Trips.Patch(c.Context(), middleware.GetClientID(c), p)
		if err != nil {
			return badRequest(c, err.Error())
		}
		return c.JSON(saved)
	}
}
