package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/maps"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/services"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// ListSavedPlaces returns the saved places, or one day's with ?day=N (0-based).
func ListSavedPlaces(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := middleware.GetClientID(c)

		var (
			list []places.Place
			err  error
		)
		if day := c.QueryInt("day", places.Unplaced); day >= 0 {
			list, err = svc.Saved.Day(c.Context(), clientID, day)
		} else {
			list, err = svc.Saved.List(c.Context(), clientID)
		}
		if err != nil {
			return internalError(c, svc, err, "Failed to load saved places")
		}
		return c.JSON(fiber.Map{
			"places": list,
			"count":  len(list),
		})
	}
}

// SavePlace adds a place unless one with the same id is already saved.
func SavePlace(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p places.Place
		if err := c.BodyParser(&p); err != nil {
			return badRequest(c, "Invalid request body")
		}

		added, err := svc.Saved.Add(c.Context(), middleware.GetClientID(c), p)
		if errors.Is(err, places.ErrInvalidPlace) {
			return badRequest(c, err.Error())
		}
		if err != nil {
			return internalError(c, svc, err, "Failed to save place")
		}

		status := fiber.StatusOK
		if added {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{
			"added": added,
		})
	}
}

// DeleteSavedPlace removes a place and closes the gap in its day.
func DeleteSavedPlace(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := svc.Saved.Remove(c.Context(), middleware.GetClientID(c), c.Params("id"))
		if errors.Is(err, places.ErrPlaceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Place not found",
			})
		}
		if err != nil {
			return internalError(c, svc, err, "Failed to remove place")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// MovePlace moves a place to a position within a day. A dayIndex of -1
// takes it off the itinerary.
func MovePlace(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			DayIndex   int `json:"dayIndex"`
			OrderIndex int `json:"orderIndex"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		list, err := svc.Saved.Move(c.Context(), middleware.GetClientID(c), c.Params("id"), req.DayIndex, req.OrderIndex)
		switch {
		case errors.Is(err, places.ErrPlaceNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Place not found",
			})
		case errors.Is(err, places.ErrInvalidDay):
			return badRequest(c, err.Error())
		case err != nil:
			return internalError(c, svc, err, "Failed to move place")
		}
		return c.JSON(fiber.Map{
			"places": list,
		})
	}
}

// SearchPlaces runs a text search, biased towards an optional location.
func SearchPlaces(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Query      string         `json:"query"`
			Location   *places.LatLng `json:"location"`
			MaxResults int            `json:"maxResults"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if req.Query == "" {
			return badRequest(c, "query is required")
		}

		found, err := svc.Places.SearchText(c.Context(), req.Query, req.Location, req.MaxResults)
		if err != nil {
			return searchError(c, svc, err)
		}
		return c.JSON(fiber.Map{
			"places": found,
		})
	}
}

// SearchNearby finds places around a location, by preferences or explicit types.
func SearchNearby(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Location    *places.LatLng    `json:"location"`
			Preferences []trip.Preference `json:"preferences"`
			Types       []string          `json:"types"`
			MaxResults  int               `json:"maxResults"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if req.Location == nil {
			return badRequest(c, "location is required")
		}
		if len(req.Preferences) == 0 && len(req.Types) == 0 {
			req.Types = []string{places.DefaultPlaceType}
		}

		found, err := svc.Places.SearchByPreferences(c.Context(), *req.Location, req.Preferences, req.Types, req.MaxResults)
		if err != nil {
			return searchError(c, svc, err)
		}
		return c.JSON(fiber.Map{
			"places": found,
		})
	}
}

func searchError(c *fiber.Ctx, svc *services.Services, err error) error {
	if errors.Is(err, maps.ErrSearchTimeout) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "Place search timed out",
		})
	}
	return internalError(c, svc, err, "Place search failed")
}

// TravelInfo returns the cached travel time and distance between two places.
func TravelInfo(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			From places.Place `json:"from"`
			To   places.Place `json:"to"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if req.From.ID == "" || req.To.ID == "" {
			return badRequest(c, "from and to places are required")
		}

		info := svc.TravelInfo.Lookup(c.Context(), middleware.GetClientID(c), req.From, req.To)
		return c.JSON(info)
	}
}
