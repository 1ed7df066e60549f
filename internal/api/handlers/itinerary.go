package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/itinerary"
	"github.com/travelrizz/travelrizz-backend/internal/maps"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

func itineraryError(c *fiber.Ctx, svc *services.Services, err error) error {
	switch {
	case errors.Is(err, itinerary.ErrNoDates), errors.Is(err, itinerary.ErrTooFewStops):
		return badRequest(c, err.Error())
	case errors.Is(err, itinerary.ErrDayOutOfRange):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, maps.ErrNoRoute):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return internalError(c, svc, err, "Failed to build itinerary")
}

// GetItinerary returns the planner view: one column per trip day.
func GetItinerary(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		it, err := svc.Itinerary.Get(c.Context(), middleware.GetClientID(c))
		if err != nil {
			return itineraryError(c, svc, err)
		}
		return c.JSON(it)
	}
}

// DistributePlaces spreads the saved places evenly over the trip days.
func DistributePlaces(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		it, err := svc.Itinerary.Distribute(c.Context(), middleware.GetClientID(c))
		if err != nil {
			return itineraryError(c, svc, err)
		}
		return c.JSON(it)
	}
}

// GetDayRoute computes the route through one day's places.
func GetDayRoute(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := c.ParamsInt("day")
		if err != nil || day < 0 {
			return badRequest(c, "day must be a non-negative number")
		}
		route, err := svc.Itinerary.DayRoute(c.Context(), middleware.GetClientID(c), day)
		if err != nil {
			return itineraryError(c, svc, err)
		}
		return c.JSON(route)
	}
}

// ExportICS downloads the itinerary as an iCalendar file.
func ExportICS(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := middleware.GetClientID(c)
		data, err := svc.Itinerary.ExportICS(c.Context(), clientID)
		if err != nil {
			return itineraryError(c, svc, err)
		}
		logExport(c, svc, clientID, "ics")
		return sendAttachment(c, "text/calendar; charset=utf-8", "itinerary.ics", data)
	}
}

// ExportPDF downloads the itinerary as a printable PDF.
func ExportPDF(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := middleware.GetClientID(c)
		data, err := svc.Itinerary.ExportPDF(c.Context(), clientID)
		if err != nil {
			return itineraryError(c, svc, err)
		}
		logExport(c, svc, clientID, "pdf")
		return sendAttachment(c, "application/pdf", "itinerary.pdf", data)
	}
}

func logExport(c *fiber.Ctx, svc *services.Services, clientID, format string) {
	_ = svc.Audit.Log(c.Context(), audit.NewEvent(audit.EventItineraryExport, clientID).With("format", format))
}

func sendAttachment(c *fiber.Ctx, contentType, name string, data []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(name, `"`, "")))
	return c.Send(data)
}
