package places

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
)

var (
	ErrPlaceNotFound = errors.New("place not found")
	ErrInvalidPlace  = errors.New("place id is required")
	ErrInvalidDay    = errors.New("invalid day")
)

// Counter records the saved-place count alongside the usage metrics.
type Counter interface {
	SetSavedPlacesCount(ctx context.Context, clientID string, n int) (*metrics.Metrics, error)
}

// SavedStore keeps each client's saved places.
type SavedStore struct {
	store   storage.Store
	locker  *storage.Locker
	counter Counter
	bus     events.Publisher
	logger  *logrus.Logger
}

// NewSavedStore creates a saved places store
func NewSavedStore(store storage.Store, locker *storage.Locker, counter Counter, bus events.Publisher, logger *logrus.Logger) *SavedStore {
	return &SavedStore{
		store:   store,
		locker:  locker,
		counter: counter,
		bus:     bus,
		logger:  logger,
	}
}

// List returns every saved place in saved order.
func (s *SavedStore) List(ctx context.Context, clientID string) ([]Place, error) {
	unlock := s.locker.Lock(clientID, storage.KeySavedPlaces)
	defer unlock()
	return s.load(ctx, clientID)
}

// Get returns one saved place.
func (s *SavedStore) Get(ctx context.Context, clientID, placeID string) (*Place, error) {
	list, err := s.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	p, ok := lo.Find(list, func(p Place) bool { return p.ID == placeID })
	if !ok {
		return nil, ErrPlaceNotFound
	}
	return &p, nil
}

// Day returns the places of one day ordered by orderIndex.
func (s *SavedStore) Day(ctx context.Context, clientID string, day int) ([]Place, error) {
	if day < 0 {
		return nil, ErrInvalidDay
	}
	list, err := s.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return dayOf(list, day), nil
}

// Add saves a place as unplaced. Saving an already saved place is a no-op
// and reports added=false.
func (s *SavedStore) Add(ctx context.Context, clientID string, place Place) (added bool, err error) {
	if place.ID == "" {
		return false, ErrInvalidPlace
	}
	err = s.mutate(ctx, clientID, func(list []Place) ([]Place, error) {
		if lo.ContainsBy(list, func(p Place) bool { return p.ID == place.ID }) {
			return nil, nil
		}
		place.DayIndex = Unplaced
		place.OrderIndex = Unplaced
		added = true
		return append(list, place), nil
	})
	return added, err
}

// Remove deletes a saved place and closes the gap in its day.
func (s *SavedStore) Remove(ctx context.Context, clientID, placeID string) error {
	return s.mutate(ctx, clientID, func(list []Place) ([]Place, error) {
		idx := lo.IndexOf(lo.Map(list, func(p Place, _ int) string { return p.ID }), placeID)
		if idx < 0 {
			return nil, ErrPlaceNotFound
		}
		return append(list[:idx], list[idx+1:]...), nil
	})
}

// Move reorders a place within or across days. toDay Unplaced takes it off
// the itinerary.
func (s *SavedStore) Move(ctx context.Context, clientID, placeID string, toDay, toIndex int) ([]Place, error) {
	if toDay < Unplaced {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDay, toDay)
	}
	var out []Place
	err := s.mutate(ctx, clientID, func(list []Place) ([]Place, error) {
		idx := lo.IndexOf(lo.Map(list, func(p Place, _ int) string { return p.ID }), placeID)
		if idx < 0 {
			return nil, ErrPlaceNotFound
		}
		move(list, idx, toDay, toIndex)
		out = list
		return list, nil
	})
	return out, err
}

// Distribute spreads every saved place evenly over numDays.
func (s *SavedStore) Distribute(ctx context.Context, clientID string, numDays int) ([]Place, error) {
	if numDays < 0 {
		return nil, fmt.Errorf("%w: %d days", ErrInvalidDay, numDays)
	}
	var out []Place
	err := s.mutate(ctx, clientID, func(list []Place) ([]Place, error) {
		distribute(list, numDays)
		out = list
		return list, nil
	})
	return out, err
}

// Clear drops every saved place.
func (s *SavedStore) Clear(ctx context.Context, clientID string) error {
	return s.mutate(ctx, clientID, func([]Place) ([]Place, error) {
		return []Place{}, nil
	})
}

// mutate applies fn under the client's places lock. fn returns nil to
// signal no change.
func (s *SavedStore) mutate(ctx context.Context, clientID string, fn func([]Place) ([]Place, error)) error {
	unlock := s.locker.Lock(clientID, storage.KeySavedPlaces)
	defer unlock()

	list, err := s.load(ctx, clientID)
	if err != nil {
		return err
	}
	next, err := fn(list)
	if err != nil || next == nil {
		return err
	}
	normalize(next)

	if err := storage.SetJSON(ctx, s.store, clientID, storage.KeySavedPlaces, next); err != nil {
		return err
	}

	if _, err := s.counter.SetSavedPlacesCount(ctx, clientID, len(next)); err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to record saved place count")
	}
	s.bus.Publish(clientID, events.PlacesChanged{Count: len(next)})
	return nil
}

func (s *SavedStore) load(ctx context.Context, clientID string) ([]Place, error) {
	var list []Place
	err := storage.GetJSON(ctx, s.store, clientID, storage.KeySavedPlaces, &list)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return []Place{}, nil
	case errors.Is(err, storage.ErrCorrupt):
		s.logger.WithError(err).WithField("client_id", clientID).Warn("Discarding corrupt saved places")
		return []Place{}, nil
	default:
		return nil, err
	}
	if list == nil {
		list = []Place{}
	}
	normalize(list)
	return list, nil
}
