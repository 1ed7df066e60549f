package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/travelrizz/travelrizz-backend/internal/api/middleware"
	"github.com/travelrizz/travelrizz-backend/internal/chat"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

func chatError(c *fiber.Ctx, svc *services.Services, err error) error {
	switch {
	case errors.Is(err, chat.ErrNoMessages), errors.Is(err, chat.ErrInvalidMessage):
		return badRequest(c, err.Error())
	case errors.Is(err, chat.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Chat is not configured",
		})
	}
	svc.Logger.WithError(err).WithField("client_id", middleware.GetClientID(c)).Error("Chat request failed")
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "Failed to process chat request",
	})
}

// Chat answers one turn and returns the text with every tool result.
func Chat(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req chat.Request
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		reply, err := svc.Chat.Complete(c.Context(), middleware.GetClientID(c), req)
		if err != nil {
			return chatError(c, svc, err)
		}
		return c.JSON(reply)
	}
}

// StreamChat answers one turn as server-sent events: text deltas, then
// tool results, then a final done frame carrying the metrics.
func StreamChat(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req chat.Request
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		clientID := middleware.GetClientID(c)

		// The stream outlives the handler, so it gets its own context,
		// cancelled when the client stops reading.
		ctx, cancel := context.WithCancel(context.Background())
		events, err := svc.Chat.Stream(ctx, clientID, req)
		if err != nil {
			cancel()
			return chatError(c, svc, err)
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		logger := svc.Logger
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			for event := range events {
				data, err := json.Marshal(event)
				if err != nil {
					logger.WithError(err).Error("Failed to encode stream event")
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				if err := w.Flush(); err != nil {
					logger.WithField("client_id", clientID).Debug("Stream client went away")
					return
				}
			}
		})
		return nil
	}
}

// QuickResponses suggests short replies to the latest assistant message.
// Suggestions are not counted against the prompt limits.
func QuickResponses(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Messages []chat.Message `json:"messages"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		responses, err := svc.Chat.QuickResponses(c.Context(), middleware.GetClientID(c), req.Messages)
		if err != nil {
			return chatError(c, svc, err)
		}
		return c.JSON(fiber.Map{
			"responses": responses,
		})
	}
}
