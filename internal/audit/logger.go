package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType represents the type of audit event
type EventType string

const (
	EventClientRegister  EventType = "client.register"
	EventSessionCreate   EventType = "session.create"
	EventSessionExpire   EventType = "session.expire"
	EventSessionClear    EventType = "session.clear"
	EventStageAdvance    EventType = "stage.advance"
	EventStageReject     EventType = "stage.reject"
	EventPaymentRef      EventType = "payment.reference"
	EventPaymentVerify   EventType = "payment.verify"
	EventPromptLimitHit  EventType = "metrics.limit_reached"
	EventItineraryExport EventType = "itinerary.export"
)

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// Event represents an audit event
type Event struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	ClientID  string                 `json:"client_id" db:"client_id"`
	SessionID string                 `json:"session_id,omitempty" db:"session_id"`
	Result    string                 `json:"result,omitempty" db:"result"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"-"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// Repository defines the interface for audit log persistence
type Repository interface {
	Insert(ctx context.Context, event *Event) error
	ListByClient(ctx context.Context, clientID string, limit int) ([]*Event, error)
}

// Service implements the audit logger
type Service struct {
	repo   Repository
	logger *logrus.Logger
}

// NewService creates a new audit service. A nil repo logs events only.
func NewService(repo Repository, logger *logrus.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Log records an audit event. Persistence failures are logged, not returned,
// so auditing never blocks the operation being audited.
func (s *Service) Log(ctx context.Context, event *Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"audit":     event.EventType,
		"client_id": event.ClientID,
	})
	if event.SessionID != "" {
		entry = entry.WithField("session_id", event.SessionID)
	}
	if event.Result != "" {
		entry = entry.WithField("result", event.Result)
	}
	if len(event.Metadata) > 0 {
		if raw, err := json.Marshal(event.Metadata); err == nil {
			entry = entry.WithField("metadata", string(raw))
		}
	}

	if s.repo == nil {
		entry.Info("Audit event")
		return nil
	}

	if err := s.repo.Insert(ctx, event); err != nil {
		entry.WithError(err).Error("Failed to persist audit event")
		return nil
	}
	entry.Debug("Audit event persisted")
	return nil
}

// ClientEvents retrieves recent audit events for a client
func (s *Service) ClientEvents(ctx context.Context, clientID string, limit int) ([]*Event, error) {
	if s.repo == nil {
		return []*Event{}, nil
	}
	return s.repo.ListByClient(ctx, clientID, limit)
}

// NewEvent creates an event stamped with a fresh ID and the current time
func NewEvent(eventType EventType, clientID string) *Event {
	return &Event{
		ID:        uuid.New(),
		EventType: eventType,
		ClientID:  clientID,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// With adds a metadata entry and returns the event for chaining
func (e *Event) With(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}

// Nop drops every event.
type Nop struct{}

func (Nop) Log(context.Context, *Event) error { return nil }
