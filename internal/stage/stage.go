package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/session"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// Stages of the planning conversation.
const (
	GatherParameters = 1
	CityIntroduction = 2
	PlaceBrowsing    = 3
	ItineraryReview  = 4
	Confirmation     = 5
)

// Rejection reasons surfaced verbatim to the user.
const (
	ReasonInvalidProgression = "invalid stage progression"
	ReasonInvalidStage       = "invalid stage"
	ReasonPremium            = "premium subscription"
)

// UpgradeMessage is shown when the free browsing limit is exhausted.
const UpgradeMessage = "I'm sorry to tell you that you have reached the prompts limit in the free version. " +
	"Would you like to upgrade to unlock unlimited places browsing and premium features? " +
	"This will give you access to personalized recommendations, detailed scheduling, and local insights."

var stageNames = map[int]string{
	GatherParameters: "Gather trip parameters",
	CityIntroduction: "City introduction",
	PlaceBrowsing:    "Place browsing",
	ItineraryReview:  "Itinerary review",
	Confirmation:     "Final confirmation",
}

// Name returns the display name of a stage.
func Name(stage int) string {
	if name, ok := stageNames[stage]; ok {
		return name
	}
	return fmt.Sprintf("Stage %d", stage)
}

// Decision is the outcome of a transition request.
type Decision struct {
	CanProgress         bool     `json:"canProgress"`
	MissingRequirements []string `json:"missingRequirements"`
	UpgradeRequired     bool     `json:"upgradeRequired,omitempty"`
}

func admit() Decision {
	return Decision{CanProgress: true, MissingRequirements: []string{}}
}

func reject(reasons ...string) Decision {
	return Decision{CanProgress: false, MissingRequirements: reasons}
}

func upgrade() Decision {
	return Decision{CanProgress: false, MissingRequirements: []string{ReasonPremium}, UpgradeRequired: true}
}

// MissingDetails names every field required before the city introduction.
func MissingDetails(d trip.Details) []string {
	missing := []string{}
	if d.Destination == "" {
		missing = append(missing, "destination")
	}
	if d.StartDate == "" {
		missing = append(missing, "start date")
	}
	if d.EndDate == "" {
		missing = append(missing, "end date")
	}
	if len(d.Preferences) == 0 {
		missing = append(missing, "preferences")
	}
	if d.Language == "" {
		missing = append(missing, "language")
	}
	return missing
}

// Evaluate decides a transition from current to next given the trip details,
// the client's metrics, and the limit check for the browsing stage.
func Evaluate(current, next int, details trip.Details, m *metrics.Metrics, browsing metrics.Limits) Decision {
	if next != current+1 {
		return reject(ReasonInvalidProgression)
	}

	switch next {
	case CityIntroduction:
		if missing := MissingDetails(details); len(missing) > 0 {
			return reject(missing...)
		}
		return admit()
	case PlaceBrowsing:
		return admit()
	case ItineraryReview:
		if browsing.Within() || m.IsPaid {
			return admit()
		}
		return upgrade()
	case Confirmation:
		if m.IsPaid {
			return admit()
		}
		return upgrade()
	default:
		return reject(ReasonInvalidStage)
	}
}

// Validator evaluates and applies stage transitions for a client.
type Validator struct {
	store    storage.Store
	locker   *storage.Locker
	sessions *session.Store
	metrics  *metrics.Store
	bus      events.Publisher
	audit    audit.Logger
	logger   *logrus.Logger
}

// NewValidator creates a stage validator
func NewValidator(store storage.Store, locker *storage.Locker, sessions *session.Store, metricsStore *metrics.Store, bus events.Publisher, auditLog audit.Logger, logger *logrus.Logger) *Validator {
	return &Validator{
		store:    store,
		locker:   locker,
		sessions: sessions,
		metrics:  metricsStore,
		bus:      bus,
		audit:    auditLog,
		logger:   logger,
	}
}

// Validate decides whether current -> next is allowed without applying it.
// With no live session and a non-empty destination, a session seeded from
// details is created first.
func (v *Validator) Validate(ctx context.Context, clientID string, current, next int, details trip.Details) (Decision, error) {
	if details.Destination != "" {
		seed := details
		if _, _, err := v.sessions.EnsureValid(ctx, clientID, &seed); err != nil {
			return Decision{}, err
		}
	}

	m, err := v.metrics.Get(ctx, clientID)
	if err != nil {
		return Decision{}, err
	}
	browsing := v.metrics.LimitsOf(m, PlaceBrowsing)

	decision := Evaluate(current, next, details, m, browsing)

	v.logger.WithFields(logrus.Fields{
		"client_id":   clientID,
		"from":        current,
		"to":          next,
		"can_advance": decision.CanProgress,
		"missing":     decision.MissingRequirements,
	}).Debug("Stage transition evaluated")
	return decision, nil
}

// Current returns the persisted stage of the client, defaulting to the first.
func (v *Validator) Current(ctx context.Context, clientID string) (int, error) {
	var current int
	err := storage.GetJSON(ctx, v.store, clientID, storage.KeyCurrentStage, &current)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return GatherParameters, nil
	case errors.Is(err, storage.ErrCorrupt):
		v.logger.WithError(err).WithField("client_id", clientID).Warn("Discarding corrupt stage")
		return GatherParameters, nil
	default:
		return 0, err
	}
	if current < GatherParameters || current > Confirmation {
		return GatherParameters, nil
	}
	return current, nil
}

// Advance moves the client from its persisted stage to next when admitted.
func (v *Validator) Advance(ctx context.Context, clientID string, next int, details trip.Details) (Decision, error) {
	unlock := v.locker.Lock(clientID, storage.KeyCurrentStage)
	defer unlock()

	current, err := v.Current(ctx, clientID)
	if err != nil {
		return Decision{}, err
	}

	decision, err := v.Validate(ctx, clientID, current, next, details)
	if err != nil {
		return Decision{}, err
	}

	if !decision.CanProgress {
		evt := audit.NewEvent(audit.EventStageReject, clientID).
			With("from", current).
			With("to", next).
			With("missing", decision.MissingRequirements)
		if decision.UpgradeRequired {
			evt.Result = "upgrade_required"
		}
		v.audit.Log(ctx, evt)
		return decision, nil
	}

	if err := storage.SetJSON(ctx, v.store, clientID, storage.KeyCurrentStage, next); err != nil {
		return Decision{}, err
	}

	v.audit.Log(ctx, audit.NewEvent(audit.EventStageAdvance, clientID).With("from", current).With("to", next))
	v.bus.Publish(clientID, events.StageChanged{From: current, To: next})
	v.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"from":      current,
		"to":        next,
	}).Info("Stage advanced")
	return decision, nil
}

// Reset returns the client to the first stage.
func (v *Validator) Reset(ctx context.Context, clientID string) error {
	unlock := v.locker.Lock(clientID, storage.KeyCurrentStage)
	defer unlock()

	current, err := v.Current(ctx, clientID)
	if err != nil {
		return err
	}
	if err := v.store.Delete(ctx, clientID, storage.KeyCurrentStage); err != nil {
		return err
	}
	if current != GatherParameters {
		v.bus.Publish(clientID, events.StageChanged{From: current, To: GatherParameters})
	}
	return nil
}
