package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// internalError logs err with the request's client and returns a generic 500.
func internalError(c *fiber.Ctx, svc *services.Services, err error, msg string) error {
	svc.Logger.WithFields(logrus.Fields{
		"client_id": middleware.GetClientID(c),
		"path":      c.Path(),
	}).WithError(err).Error(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}
