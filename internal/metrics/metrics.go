package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/session"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// Metrics counts usage against the free-tier limits.
type Metrics struct {
	TotalPrompts     int         `json:"totalPrompts"`
	StagePrompts     map[int]int `json:"stagePrompts"`
	IsPaid           bool        `json:"isPaid"`
	PaymentReference string      `json:"paymentReference,omitempty"`
	SavedPlacesCount int         `json:"savedPlacesCount"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Limits is the read-only result of a limit check.
type Limits struct {
	WithinStageLimit bool `json:"withinStageLimit"`
	WithinTotalLimit bool `json:"withinTotalLimit"`
	StageInputCount  int  `json:"stageInputCount"`
	TotalInputCount  int  `json:"totalInputCount"`
}

// Within reports whether both ceilings are unbroken.
func (l Limits) Within() bool {
	return l.WithinStageLimit && l.WithinTotalLimit
}

func defaults() *Metrics {
	return &Metrics{StagePrompts: map[int]int{1: 0, 2: 0, 3: 0}}
}

// Sessions is the part of the session store metrics depend on.
type Sessions interface {
	IsValid(ctx context.Context, clientID string) bool
	Initialize(ctx context.Context, clientID string, seed *trip.Details) (*session.Session, error)
}

// Store manages the metrics record of each client scope.
type Store struct {
	store    storage.Store
	locker   *storage.Locker
	sessions Sessions
	policy   config.LimitsConfig
	bus      events.Publisher
	audit    audit.Logger
	logger   *logrus.Logger
	now      func() time.Time
}

// NewStore creates a metrics store
func NewStore(store storage.Store, locker *storage.Locker, sessions Sessions, policy config.LimitsConfig, bus events.Publisher, auditLog audit.Logger, logger *logrus.Logger) *Store {
	return &Store{
		store:    store,
		locker:   locker,
		sessions: sessions,
		policy:   policy,
		bus:      bus,
		audit:    auditLog,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the configured limits.
func (s *Store) Policy() config.LimitsConfig {
	return s.policy
}

// Get returns the client's metrics. An invalid session resets them and
// starts a fresh session.
func (s *Store) Get(ctx context.Context, clientID string) (*Metrics, error) {
	unlock := s.locker.Lock(clientID, storage.KeyMetrics)
	defer unlock()

	return s.getLocked(ctx, clientID)
}

// Update increments the prompt counters for stage when increment is set and
// the stage is still within its limits. At the ceiling it changes nothing.
func (s *Store) Update(ctx context.Context, clientID string, stage int, increment bool) (*Metrics, error) {
	unlock := s.locker.Lock(clientID, storage.KeyMetrics)
	defer unlock()

	m, err := s.getLocked(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !increment {
		return m, nil
	}

	if !s.limitsOf(m, stage).Within() {
		s.logger.WithFields(logrus.Fields{
			"client_id": clientID,
			"stage":     stage,
			"total":     m.TotalPrompts,
		}).Debug("Prompt limit reached, counters unchanged")
		return m, nil
	}

	m.TotalPrompts++
	m.StagePrompts[stage]++
	if err := s.saveLocked(ctx, clientID, m); err != nil {
		return nil, err
	}

	if !s.limitsOf(m, stage).Within() {
		evt := audit.NewEvent(audit.EventPromptLimitHit, clientID).
			With("stage", stage).
			With("total_prompts", m.TotalPrompts)
		s.audit.Log(ctx, evt)
	}
	return m, nil
}

// CheckLimits reports the ceilings for stage without mutating anything.
func (s *Store) CheckLimits(ctx context.Context, clientID string, stage int) (Limits, error) {
	m, err := s.Get(ctx, clientID)
	if err != nil {
		return Limits{}, err
	}
	return s.limitsOf(m, stage), nil
}

// LimitsOf evaluates the ceilings against an already loaded record.
func (s *Store) LimitsOf(m *Metrics, stage int) Limits {
	return s.limitsOf(m, stage)
}

func (s *Store) limitsOf(m *Metrics, stage int) Limits {
	stageCount := m.StagePrompts[stage]
	limits := Limits{
		WithinStageLimit: true,
		WithinTotalLimit: true,
		StageInputCount:  stageCount,
		TotalInputCount:  m.TotalPrompts,
	}
	if stage == s.policy.LimitedStage {
		limits.WithinStageLimit = stageCount < s.policy.MaxStagePrompts
		limits.WithinTotalLimit = m.TotalPrompts < s.policy.MaxTotalPrompts
	}
	return limits
}

// Reset zeroes the counters and payment state.
func (s *Store) Reset(ctx context.Context, clientID string) (*Metrics, error) {
	unlock := s.locker.Lock(clientID, storage.KeyMetrics)
	defer unlock()

	m := defaults()
	if err := s.saveLocked(ctx, clientID, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetPaymentReference stores the reference of a pending checkout.
func (s *Store) SetPaymentReference(ctx context.Context, clientID, reference string) (*Metrics, error) {
	return s.mutate(ctx, clientID, func(m *Metrics) {
		m.PaymentReference = reference
	})
}

// MarkPaid unlocks the premium tier for the current session.
func (s *Store) MarkPaid(ctx context.Context, clientID, reference string) (*Metrics, error) {
	return s.mutate(ctx, clientID, func(m *Metrics) {
		m.IsPaid = true
		m.PaymentReference = reference
	})
}

// SetSavedPlacesCount records how many places the client has saved.
func (s *Store) SetSavedPlacesCount(ctx context.Context, clientID string, n int) (*Metrics, error) {
	return s.mutate(ctx, clientID, func(m *Metrics) {
		m.SavedPlacesCount = n
	})
}

func (s *Store) mutate(ctx context.Context, clientID string, fn func(*Metrics)) (*Metrics, error) {
	unlock := s.locker.Lock(clientID, storage.KeyMetrics)
	defer unlock()

	m, err := s.getLocked(ctx, clientID)
	if err != nil {
		return nil, err
	}
	fn(m)
	if err := s.saveLocked(ctx, clientID, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) getLocked(ctx context.Context, clientID string) (*Metrics, error) {
	if !s.sessions.IsValid(ctx, clientID) {
		return s.resetLocked(ctx, clientID)
	}

	m := defaults()
	err := storage.GetJSON(ctx, s.store, clientID, storage.KeyMetrics, m)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		// A session without metrics starts from zero without replacing the session.
		m = defaults()
		if err := s.saveLocked(ctx, clientID, m); err != nil {
			return nil, err
		}
		return m, nil
	case errors.Is(err, storage.ErrCorrupt):
		s.logger.WithError(err).WithField("client_id", clientID).Warn("Discarding corrupt metrics")
		return s.resetLocked(ctx, clientID)
	default:
		return nil, err
	}

	if m.StagePrompts == nil {
		m.StagePrompts = map[int]int{}
	}
	return m, nil
}

func (s *Store) resetLocked(ctx context.Context, clientID string) (*Metrics, error) {
	// metrics lock is held; the session lock is taken inside Initialize
	if _, err := s.sessions.Initialize(ctx, clientID, nil); err != nil {
		return nil, err
	}
	m := defaults()
	if err := s.saveLocked(ctx, clientID, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) saveLocked(ctx context.Context, clientID string, m *Metrics) error {
	m.UpdatedAt = s.now()
	if err := storage.SetJSON(ctx, s.store, clientID, storage.KeyMetrics, m); err != nil {
		return err
	}
	s.bus.Publish(clientID, events.MetricsUpdated{
		TotalPrompts: m.TotalPrompts,
		StagePrompts: lo.Assign(m.StagePrompts),
		IsPaid:       m.IsPaid,
	})
	return nil
}
