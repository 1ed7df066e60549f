package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/handlers"
	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services) {
	api := app.Group("/api/v1")

	// ========================================
	// Public routes
	// ========================================

	api.Get("/health", handlers.Health(svc))
	api.Post("/clients", middleware.RegistrationRateLimit(), handlers.RegisterClient(svc))

	// ========================================
	// WebSocket routes
	// ========================================

	ws := api.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, middleware.ClientRequired(svc.Tokens))
	ws.Get("/chat", websocket.New(handlers.ChatSocket(svc)))
	ws.Get("/events", websocket.New(handlers.EventsSocket(svc)))

	// ========================================
	// Client routes
	// ========================================

	client := api.Group("", middleware.ClientRequired(svc.Tokens), middleware.APIRateLimit(120, 1*time.Minute))

	client.Get("/activity", handlers.GetActivity(svc))

	// Session lifecycle
	client.Post("/session", handlers.CreateSession(svc))
	client.Get("/session", handlers.GetSession(svc))
	client.Delete("/session", handlers.DeleteSession(svc))

	// Usage metrics
	client.Get("/metrics", handlers.GetMetrics(svc))
	client.Get("/metrics/limits", handlers.CheckLimits(svc))

	// Trip details
	client.Get("/trip", handlers.GetTrip(svc))
	client.Put("/trip", handlers.PutTrip(svc))
	client.Patch("/trip", handlers.PatchTrip(svc))

	// Planning stages
	client.Get("/stage", handlers.GetStage(svc))
	client.Post("/stage/validate", handlers.ValidateStage(svc))

	// Saved places and search
	client.Get("/places", handlers.ListSavedPlaces(svc))
	client.Post("/places", handlers.SavePlace(svc))
	client.Post("/places/search", handlers.SearchPlaces(svc))
	client.Post("/places/nearby", handlers.SearchNearby(svc))
	client.Delete("/places/:id", handlers.DeleteSavedPlace(svc))
	client.Post("/places/:id/move", handlers.MovePlace(svc))
	client.Post("/travel-info", handlers.TravelInfo(svc))

	// Itinerary
	client.Get("/itinerary", handlers.GetItinerary(svc))
	client.Post("/itinerary/distribute", handlers.DistributePlaces(svc))
	client.Get("/itinerary/days/:day/route", handlers.GetDayRoute(svc))
	client.Get("/itinerary/export.ics", handlers.ExportICS(svc))
	client.Get("/itinerary/export.pdf", handlers.ExportPDF(svc))

	// Weather and currency
	client.Get("/weather/historical", handlers.HistoricalWeather(svc))
	client.Get("/currency/rates", handlers.GetRates(svc))
	client.Post("/currency/convert", handlers.ConvertCurrency(svc))

	// Payments
	client.Post("/payments/reference", handlers.CreatePaymentReference(svc))
	client.Get("/payments/verify", handlers.VerifyPayment(svc))

	// Chat
	chat := client.Group("/chat", middleware.ChatRateLimit())
	chat.Post("", handlers.Chat(svc))
	chat.Post("/stream", handlers.StreamChat(svc))
	chat.Post("/quick-responses", handlers.QuickResponses(svc))
}
