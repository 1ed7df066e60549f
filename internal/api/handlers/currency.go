package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/currency"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

func currencyError(c *fiber.Ctx, svc *services.Services, err error) error {
	if errors.Is(err, currency.ErrUnknownCurrency) || errors.Is(err, currency.ErrNoRate) {
		return badRequest(c, err.Error())
	}
	svc.Logger.WithError(err).Error("Currency lookup failed")
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "Failed to fetch exchange rates",
	})
}

// GetRates returns the exchange rates of a base currency (USD by default).
func GetRates(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		base := c.Query("base", "USD")
		rates, err := svc.Currency.Rates(c.Context(), base)
		if err != nil {
			return currencyError(c, svc, err)
		}
		return c.JSON(fiber.Map{
			"base":  base,
			"rates": rates,
		})
	}
}

// ConvertCurrency converts an amount. The target defaults to the currency
// of the trip destination.
func ConvertCurrency(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Amount      float64 `json:"amount"`
			From        string  `json:"from"`
			To          string  `json:"to"`
			Destination string  `json:"destination"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if req.Amount < 0 {
			return badRequest(c, "amount must not be negative")
		}
		if req.From == "" {
			req.From = "USD"
		}
		if req.To == "" {
			req.To = currency.ForDestination(req.Destination)
		}

		conv, err := svc.Currency.Convert(c.Context(), req.Amount, req.From, req.To)
		if err != nil {
			return currencyError(c, svc, err)
		}
		return c.JSON(conv)
	}
}
