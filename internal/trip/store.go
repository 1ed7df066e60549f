package trip

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/storage"
)

// Store keeps each client's trip details under the travel_details key.
type Store struct {
	store  storage.Store
	locker *storage.Locker
	logger *logrus.Logger
}

func NewStore(store storage.Store, locker *storage.Locker, logger *logrus.Logger) *Store {
	return &Store{store: store, locker: locker, logger: logger}
}

// Get returns the stored details. Absent or unreadable details are empty.
func (s *Store) Get(ctx context.Context, clientID string) (Details, error) {
	unlock := s.locker.Lock(clientID, storage.KeyTravelDetails)
	defer unlock()
	return s.load(ctx, clientID)
}

// Put replaces the details after validating them.
func (s *Store) Put(ctx context.Context, clientID string, d Details) (Details, error) {
	if err := d.Validate(); err != nil {
		return Details{}, err
	}
	unlock := s.locker.Lock(clientID, storage.KeyTravelDetails)
	defer unlock()
	if err := storage.SetJSON(ctx, s.store, clientID, storage.KeyTravelDetails, d); err != nil {
		return Details{}, err
	}
	return d, nil
}

// Patch applies a partial update and stores the result.
func (s *Store) Patch(ctx context.Context, clientID string, p Patch) (Details, error) {
	unlock := s.locker.Lock(clientID, storage.KeyTravelDetails)
	defer unlock()

	current, err := s.load(ctx, clientID)
	if err != nil {
		return Details{}, err
	}
	next := current.Apply(p)
	if err := next.Validate(); err != nil {
		return Details{}, err
	}
	if err := storage.SetJSON(ctx, s.store, clientID, storage.KeyTravelDetails, next); err != nil {
		return Details{}, err
	}
	return next, nil
}

func (s *Store) Clear(ctx context.Context, clientID string) error {
	unlock := s.locker.Lock(clientID, storage.KeyTravelDetails)
	defer unlock()
	return s.store.Delete(ctx, clientID, storage.KeyTravelDetails)
}

func (s *Store) load(ctx context.Context, clientID string) (Details, error) {
	var d Details
	err := storage.GetJSON(ctx, s.store, clientID, storage.KeyTravelDetails, &d)
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, storage.ErrNotFound):
		return Details{}, nil
	case errors.Is(err, storage.ErrCorrupt):
		s.logger.WithError(err).WithField("client_id", clientID).Warn("Discarding unreadable trip details")
		_ = s.store.Delete(ctx, clientID, storage.KeyTravelDetails)
		return Details{}, nil
	default:
		return Details{}, err
	}
}
