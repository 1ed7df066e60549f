package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Type names an event kind.
type Type string

const (
	TypeSessionExpired Type = "session.expired"
	TypeStageChanged   Type = "stage.changed"
	TypePlacesChanged  Type = "places.changed"
	TypeMetricsUpdated Type = "metrics.updated"
)

// Payload is implemented by every event body. The set is closed.
type Payload interface {
	eventType() Type
}

type SessionExpired struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type StageChanged struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type PlacesChanged struct {
	Count int `json:"count"`
}

type MetricsUpdated struct {
	TotalPrompts int         `json:"totalPrompts"`
	StagePrompts map[int]int `json:"stagePrompts"`
	IsPaid       bool        `json:"isPaid"`
}

func (SessionExpired) eventType() Type { return TypeSessionExpired }
func (StageChanged) eventType() Type   { return TypeStageChanged }
func (PlacesChanged) eventType() Type  { return TypePlacesChanged }
func (MetricsUpdated) eventType() Type { return TypeMetricsUpdated }

// Event is one notification addressed to a client.
type Event struct {
	Type     Type      `json:"type"`
	ClientID string    `json:"-"`
	At       time.Time `json:"at"`
	Payload  Payload   `json:"payload"`
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(clientID string, payload Payload)
}

// Bus fans events out to every subscriber of a client.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	buffer int
	logger *logrus.Logger
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int, logger *logrus.Logger) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subs:   make(map[string]map[int]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a listener for clientID. The returned cancel function
// closes the channel and must be called exactly once.
func (b *Bus) Subscribe(clientID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, b.buffer)
	if b.subs[clientID] == nil {
		b.subs[clientID] = make(map[int]chan Event)
	}
	b.subs[clientID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[clientID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, clientID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers payload to every subscriber of clientID without blocking.
// Slow subscribers miss events.
func (b *Bus) Publish(clientID string, payload Payload) {
	evt := Event{
		Type:     payload.eventType(),
		ClientID: clientID,
		At:       time.Now(),
		Payload:  payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[clientID] {
		select {
		case ch <- evt:
		default:
			b.logger.WithFields(logrus.Fields{
				"client_id": clientID,
				"type":      evt.Type,
			}).Warn("Dropping event for slow subscriber")
		}
	}
}

// Subscribers returns the number of open subscriptions for clientID.
func (b *Bus) Subscribers(clientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[clientID])
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, Payload) {}
