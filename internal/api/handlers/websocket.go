package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/chat"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

// wsFrame is a client frame on the chat socket. "chat" starts a turn and
// "stop" cancels the one in flight.
type wsFrame struct {
	Type string `json:"type"`
	chat.Request
}

func clientOf(c *websocket.Conn) string {
	id, _ := c.Locals("client_id").(string)
	return id
}

// ChatSocket streams chat turns over a WebSocket. Only one turn runs at a
// time; a chat frame received mid-turn replaces the running turn.
func ChatSocket(svc *services.Services) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		clientID := clientOf(c)
		logger := svc.Logger.WithFields(logrus.Fields{"client_id": clientID, "socket": "chat"})
		logger.Debug("Chat socket connected")
		defer logger.Debug("Chat socket closed")

		frames := make(chan wsFrame)
		readDone := make(chan struct{})
		quit := make(chan struct{})
		defer close(quit)
		go func() {
			defer close(readDone)
			for {
				_, raw, err := c.ReadMessage()
				if err != nil {
					return
				}
				var f wsFrame
				if err := json.Unmarshal(raw, &f); err != nil {
					f = wsFrame{Type: "invalid"}
				}
				select {
				case frames <- f:
				case <-quit:
					return
				}
			}
		}()

		var (
			events <-chan chat.StreamEvent
			cancel context.CancelFunc = func() {}
		)
		defer func() { cancel() }()

		for {
			select {
			case <-readDone:
				return

			case f := <-frames:
				switch f.Type {
				case "stop":
					cancel()
					if events != nil {
						events = nil
						_ = c.WriteJSON(chat.StreamEvent{Type: chat.EventDone})
					}
				case "chat":
					cancel()
					var ctx context.Context
					ctx, cancel = context.WithCancel(context.Background())
					stream, err := svc.Chat.Stream(ctx, clientID, f.Request)
					if err != nil {
						cancel()
						events = nil
						_ = c.WriteJSON(chat.StreamEvent{Type: chat.EventError, Error: err.Error()})
						continue
					}
					events = stream
				default:
					_ = c.WriteJSON(chat.StreamEvent{Type: chat.EventError, Error: "unknown frame type"})
				}

			case event, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if err := c.WriteJSON(event); err != nil {
					logger.WithError(err).Debug("Failed to write chat frame")
					return
				}
			}
		}
	}
}

// EventsSocket pushes the client's state-change notifications to every
// open tab.
func EventsSocket(svc *services.Services) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		clientID := clientOf(c)
		events, unsubscribe := svc.Bus.Subscribe(clientID)
		defer unsubscribe()

		// Detect the peer closing the socket.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := c.WriteJSON(event); err != nil {
					return
				}
			}
		}
	}
}
