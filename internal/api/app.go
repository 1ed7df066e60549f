package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

// NewApp builds the HTTP application with its middleware and routes.
func NewApp(svc *services.Services) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Travel Planner Backend",
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(middleware.RequestLogConfig{
		Logger:    svc.Logger,
		SkipPaths: []string{"/api/v1/health"},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins(svc.Config.Server.CORSOrigins),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	SetupRoutes(app, svc)
	return app
}

// ErrorHandler renders errors that escape a handler as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func origins(configured string) string {
	parts := strings.Split(configured, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ",")
}
