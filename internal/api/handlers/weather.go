package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/services"
	"github.com/travelrizz/travelrizz-backend/internal/weather"
)

// HistoricalWeather returns daily temperature and precipitation summaries.
func HistoricalWeather(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" || c.Query("start_date") == "" || c.Query("end_date") == "" {
			return badRequest(c, "Missing required parameters: lat, lon, start_date, end_date")
		}
		start, err := time.Parse(weather.ISODate, c.Query("start_date"))
		if err != nil {
			return badRequest(c, "Invalid date format. Use YYYY-MM-DD")
		}
		end, err := time.Parse(weather.ISODate, c.Query("end_date"))
		if err != nil {
			return badRequest(c, "Invalid date format. Use YYYY-MM-DD")
		}

		req := weather.Request{
			Lat:   c.QueryFloat("lat", 1000),
			Lon:   c.QueryFloat("lon", 1000),
			Start: start,
			End:   end,
			Units: c.Query("units", "metric"),
		}

		days, err := svc.Weather.Historical(c.Context(), req)
		switch {
		case errors.Is(err, weather.ErrInvalidCoordinates),
			errors.Is(err, weather.ErrInvalidUnits),
			errors.Is(err, weather.ErrInvalidRange):
			return badRequest(c, err.Error())
		case err != nil:
			svc.Logger.WithError(err).Error("Weather lookup failed")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to fetch weather data",
			})
		}

		return c.JSON(fiber.Map{
			"lat":   req.Lat,
			"lon":   req.Lon,
			"units": req.Units,
			"days":  days,
		})
	}
}
