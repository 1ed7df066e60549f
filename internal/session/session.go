package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// Session is one time-boxed planning session.
type Session struct {
	ID         string        `json:"sessionId"`
	StartTime  time.Time     `json:"startTime"`
	LastActive time.Time     `json:"lastActive"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	Details    *trip.Details `json:"details,omitempty"`
}

// Status is the result of a validity check that also reports the warning window.
type Status struct {
	IsValid    bool      `json:"isValid"`
	ShouldWarn bool      `json:"shouldWarn"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
	IdleUntil  time.Time `json:"idleUntil,omitempty"`
}

// Store manages the session record of each client scope.
type Store struct {
	store  storage.Store
	locker *storage.Locker
	cfg    config.SessionConfig
	bus    events.Publisher
	audit  audit.Logger
	logger *logrus.Logger
	now    func() time.Time
}

// NewStore creates a session store
func NewStore(store storage.Store, locker *storage.Locker, cfg config.SessionConfig, bus events.Publisher, auditLog audit.Logger, logger *logrus.Logger) *Store {
	return &Store{
		store:  store,
		locker: locker,
		cfg:    cfg,
		bus:    bus,
		audit:  auditLog,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Initialize creates and persists a new session, replacing any prior one.
func (s *Store) Initialize(ctx context.Context, clientID string, seed *trip.Details) (*Session, error) {
	unlock := s.locker.Lock(clientID, storage.KeySession)
	defer unlock()

	return s.initializeLocked(ctx, clientID, seed)
}

func (s *Store) initializeLocked(ctx context.Context, clientID string, seed *trip.Details) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:         uuid.New().String(),
		StartTime:  now,
		LastActive: now,
		ExpiresAt:  now.Add(s.cfg.AbsoluteTimeout),
		Details:    seed,
	}

	if err := storage.SetJSON(ctx, s.store, clientID, storage.KeySession, sess); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.NewEvent(audit.EventSessionCreate, clientID).With("session_id", sess.ID))
	s.logger.WithFields(logrus.Fields{
		"client_id":  clientID,
		"session_id": sess.ID,
	}).Info("Session initialized")
	return sess, nil
}

// IsValid reports whether the client has a live session and, if so,
// refreshes its last-active time. It fails closed and never returns an
// error for absent or corrupt data.
func (s *Store) IsValid(ctx context.Context, clientID string) bool {
	status, err := s.check(ctx, clientID, true)
	if err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Error("Session check failed")
		return false
	}
	return status.IsValid
}

// CheckWithWarning reports validity and whether the inactivity deadline
// falls inside the warning window. It does not refresh last-active, so
// polling it cannot keep an idle session alive.
func (s *Store) CheckWithWarning(ctx context.Context, clientID string) (Status, error) {
	return s.check(ctx, clientID, false)
}

// Touch refreshes last-active on a valid session.
func (s *Store) Touch(ctx context.Context, clientID string) error {
	_, err := s.check(ctx, clientID, true)
	return err
}

// Get returns the live session without refreshing it, or nil.
func (s *Store) Get(ctx context.Context, clientID string) (*Session, error) {
	unlock := s.locker.Lock(clientID, storage.KeySession)
	defer unlock()

	sess, ok, err := s.loadLocked(ctx, clientID)
	if err != nil || !ok {
		return nil, err
	}
	if reason := s.expiredReason(sess); reason != "" {
		return nil, s.expireLocked(ctx, clientID, sess, reason)
	}
	return sess, nil
}

// Clear removes the session and the metrics that share its lifecycle.
func (s *Store) Clear(ctx context.Context, clientID string) error {
	unlock := s.locker.Lock(clientID, storage.KeySession)
	defer unlock()

	if err := s.clearLocked(ctx, clientID); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.NewEvent(audit.EventSessionClear, clientID))
	return nil
}

// EnsureValid returns the live session, creating one seeded from seed when
// none is valid.
func (s *Store) EnsureValid(ctx context.Context, clientID string, seed *trip.Details) (*Session, bool, error) {
	unlock := s.locker.Lock(clientID, storage.KeySession)
	defer unlock()

	sess, ok, err := s.loadLocked(ctx, clientID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		if reason := s.expiredReason(sess); reason == "" {
			return sess, false, nil
		} else if err := s.expireLocked(ctx, clientID, sess, reason); err != nil {
			return nil, false, err
		}
	}

	sess, err = s.initializeLocked(ctx, clientID, seed)
	return sess, err == nil, err
}

func (s *Store) check(ctx context.Context, clientID string, refresh bool) (Status, error) {
	unlock := s.locker.Lock(clientID, storage.KeySession)
	defer unlock()

	sess, ok, err := s.loadLocked(ctx, clientID)
	if err != nil || !ok {
		return Status{}, err
	}

	if reason := s.expiredReason(sess); reason != "" {
		return Status{}, s.expireLocked(ctx, clientID, sess, reason)
	}

	now := s.now()
	idleUntil := sess.LastActive.Add(s.cfg.InactivityTimeout)
	status := Status{
		IsValid:    true,
		ShouldWarn: idleUntil.Sub(now) <= s.cfg.WarningBefore,
		ExpiresAt:  sess.ExpiresAt,
		IdleUntil:  idleUntil,
	}

	if !refresh {
		return status, nil
	}
	sess.LastActive = now
	if err := storage.SetJSON(ctx, s.store, clientID, storage.KeySession, sess); err != nil {
		return Status{}, err
	}
	status.IdleUntil = now.Add(s.cfg.InactivityTimeout)
	status.ShouldWarn = false
	return status, nil
}

// loadLocked reads the session. Corrupt data is cleared and reported as absent.
func (s *Store) loadLocked(ctx context.Context, clientID string) (*Session, bool, error) {
	var sess Session
	err := storage.GetJSON(ctx, s.store, clientID, storage.KeySession, &sess)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return nil, false, nil
	case errors.Is(err, storage.ErrCorrupt):
		s.logger.WithError(err).WithField("client_id", clientID).Warn("Discarding corrupt session")
		return nil, false, s.clearLocked(ctx, clientID)
	default:
		return nil, false, err
	}

	if sess.ID == "" || sess.ExpiresAt.IsZero() || sess.LastActive.IsZero() {
		s.logger.WithField("client_id", clientID).Warn("Discarding incomplete session")
		return nil, false, s.clearLocked(ctx, clientID)
	}
	return &sess, true, nil
}

func (s *Store) expiredReason(sess *Session) string {
	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		return "absolute"
	}
	if now.Sub(sess.LastActive) >= s.cfg.InactivityTimeout {
		return "inactivity"
	}
	return ""
}

func (s *Store) expireLocked(ctx context.Context, clientID string, sess *Session, reason string) error {
	s.logger.WithFields(logrus.Fields{
		"client_id":  clientID,
		"session_id": sess.ID,
		"reason":     reason,
	}).Info("Session expired")

	if err := s.clearLocked(ctx, clientID); err != nil {
		return err
	}

	evt := audit.NewEvent(audit.EventSessionExpire, clientID)
	evt.SessionID = sess.ID
	evt.Result = reason
	s.audit.Log(ctx, evt)
	s.bus.Publish(clientID, events.SessionExpired{SessionID: sess.ID, Reason: reason})
	return nil
}

func (s *Store) clearLocked(ctx context.Context, clientID string) error {
	return s.store.Delete(ctx, clientID, storage.KeySession, storage.KeyMetrics)
}
