package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Fixed keys inside a client scope.
const (
	KeySession       = "travel_session"
	KeyMetrics       = "travel_interaction_metrics"
	KeyTravelDetails = "travel_details"
	KeySavedPlaces   = "saved_places"
	KeyTravelInfo    = "travel_info_cache"
	KeyCurrentStage  = "current_stage"
)

var (
	// ErrNotFound is returned when a key is absent from a scope
	ErrNotFound = errors.New("storage: key not found")
	// ErrCorrupt is returned when a stored value cannot be decoded
	ErrCorrupt = errors.New("storage: corrupt value")
)

// Store persists JSON blobs under fixed keys, partitioned by client scope.
// A scope plays the role a browser origin's storage played for the web client.
type Store interface {
	Get(ctx context.Context, scope, key string) ([]byte, error)
	Set(ctx context.Context, scope, key string, value []byte) error
	Delete(ctx context.Context, scope string, keys ...string) error
	Close() error
}

// GetJSON loads and decodes a value. Decode failures are reported as ErrCorrupt.
func GetJSON(ctx context.Context, s Store, scope, key string, dst interface{}) error {
	raw, err := s.Get(ctx, scope, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes and stores a value.
func SetJSON(ctx context.Context, s Store, scope, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, scope, key, raw)
}

// Locker serializes read-modify-write cycles on one key of one scope.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

type scopeLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty locker
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*scopeLock)}
}

// Lock acquires the lock for scope/key and returns its release function.
// Callers that need several keys take them in a fixed order: current
// stage, then saved places, then metrics, then session.
func (l *Locker) Lock(scope, key string) func() {
	name := scope + "/" + key

	l.mu.Lock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &scopeLock{}
		l.locks[name] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}
