package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/session"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

var paris = trip.Details{
	Destination: "Paris, France",
	StartDate:   "01/06/2025",
	EndDate:     "05/06/2025",
	Preferences: []trip.Preference{trip.PreferenceFood},
	Language:    "en",
}

type fixture struct {
	validator *Validator
	sessions  *session.Store
	metrics   *metrics.Store
	bus       *events.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := storage.NewMemoryStore(0)
	locker := storage.NewLocker()
	logger := logging.Discard()
	bus := events.NewBus(8, logger)

	sessions := session.NewStore(backend, locker, config.SessionConfig{
		AbsoluteTimeout:   24 * time.Hour,
		InactivityTimeout: 2 * time.Hour,
		WarningBefore:     5 * time.Minute,
	}, bus, audit.Nop{}, logger)
	metricsStore := metrics.NewStore(backend, locker, sessions, config.LimitsConfig{
		LimitedStage:    3,
		MaxStagePrompts: 5,
		MaxTotalPrompts: 15,
	}, events.Nop{}, audit.Nop{}, logger)

	return fixture{
		validator: NewValidator(backend, locker, sessions, metricsStore, bus, audit.Nop{}, logger),
		sessions:  sessions,
		metrics:   metricsStore,
		bus:       bus,
	}
}

func TestEvaluate_OnlySequentialMoves(t *testing.T) {
	m := &metrics.Metrics{IsPaid: true, StagePrompts: map[int]int{}}
	within := metrics.Limits{WithinStageLimit: true, WithinTotalLimit: true}

	for current := 1; current <= 5; current++ {
		for next := 0; next <= 6; next++ {
			if next == current+1 {
				continue
			}
			d := Evaluate(current, next, paris, m, within)
			assert.False(t, d.CanProgress, "%d -> %d", current, next)
			assert.Equal(t, []string{ReasonInvalidProgression}, d.MissingRequirements, "%d -> %d", current, next)
		}
	}
}

func TestEvaluate_OutOfRangeTargets(t *testing.T) {
	m := &metrics.Metrics{IsPaid: true}
	within := metrics.Limits{WithinStageLimit: true, WithinTotalLimit: true}

	d := Evaluate(5, 6, paris, m, within)
	assert.False(t, d.CanProgress)
	assert.Equal(t, []string{ReasonInvalidStage}, d.MissingRequirements)

	d = Evaluate(0, 1, paris, m, within)
	assert.Equal(t, []string{ReasonInvalidStage}, d.MissingRequirements)
}

func TestEvaluate_CityIntroductionRequirements(t *testing.T) {
	m := &metrics.Metrics{}
	within := metrics.Limits{WithinStageLimit: true, WithinTotalLimit: true}

	d := Evaluate(1, 2, trip.Details{}, m, within)
	assert.False(t, d.CanProgress)
	assert.Equal(t, []string{"destination", "start date", "end date", "preferences", "language"}, d.MissingRequirements)

	partial := paris
	partial.EndDate = ""
	partial.Preferences = nil
	d = Evaluate(1, 2, partial, m, within)
	assert.Equal(t, []string{"end date", "preferences"}, d.MissingRequirements)

	d = Evaluate(1, 2, paris, m, within)
	assert.True(t, d.CanProgress)
	assert.Empty(t, d.MissingRequirements)
}

func TestEvaluate_PlaceBrowsingAlwaysAdmitted(t *testing.T) {
	d := Evaluate(2, 3, trip.Details{}, &metrics.Metrics{}, metrics.Limits{})
	assert.True(t, d.CanProgress)
}

func TestEvaluate_ItineraryReview(t *testing.T) {
	atCeiling := metrics.Limits{WithinStageLimit: false, WithinTotalLimit: true, StageInputCount: 5}
	within := metrics.Limits{WithinStageLimit: true, WithinTotalLimit: true, StageInputCount: 2}

	d := Evaluate(3, 4, paris, &metrics.Metrics{IsPaid: false}, atCeiling)
	assert.False(t, d.CanProgress)
	assert.True(t, d.UpgradeRequired)
	assert.Equal(t, []string{ReasonPremium}, d.MissingRequirements)

	d = Evaluate(3, 4, paris, &metrics.Metrics{IsPaid: true}, atCeiling)
	assert.True(t, d.CanProgress)

	d = Evaluate(3, 4, paris, &metrics.Metrics{IsPaid: false}, within)
	assert.True(t, d.CanProgress)
}

func TestEvaluate_ConfirmationRequiresPayment(t *testing.T) {
	within := metrics.Limits{WithinStageLimit: true, WithinTotalLimit: true}

	d := Evaluate(4, 5, paris, &metrics.Metrics{IsPaid: false}, within)
	assert.False(t, d.CanProgress)
	assert.True(t, d.UpgradeRequired)
	assert.Equal(t, []string{ReasonPremium}, d.MissingRequirements)

	d = Evaluate(4, 5, paris, &metrics.Metrics{IsPaid: true}, within)
	assert.True(t, d.CanProgress)
}

func TestValidate_ParisWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.False(t, f.sessions.IsValid(ctx, "client-a"))

	d, err := f.validator.Validate(ctx, "client-a", 1, 2, paris)
	require.NoError(t, err)
	assert.True(t, d.CanProgress)
	assert.Equal(t, []string{}, d.MissingRequirements)
	assert.False(t, d.UpgradeRequired)

	sess, err := f.sessions.Get(ctx, "client-a")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, sess.Details)
	assert.Equal(t, "Paris, France", sess.Details.Destination)
}

func TestValidate_BrowsingCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.metrics.Update(ctx, "client-a", PlaceBrowsing, true)
		require.NoError(t, err)
	}

	d, err := f.validator.Validate(ctx, "client-a", 3, 4, paris)
	require.NoError(t, err)
	assert.False(t, d.CanProgress)
	assert.True(t, d.UpgradeRequired)

	_, err = f.metrics.MarkPaid(ctx, "client-a", "ref-1")
	require.NoError(t, err)

	d, err = f.validator.Validate(ctx, "client-a", 3, 4, paris)
	require.NoError(t, err)
	assert.True(t, d.CanProgress)
}

func TestAdvance_PersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, cancel := f.bus.Subscribe("client-a")
	defer cancel()

	current, err := f.validator.Current(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, GatherParameters, current)

	d, err := f.validator.Advance(ctx, "client-a", CityIntroduction, paris)
	require.NoError(t, err)
	require.True(t, d.CanProgress)

	current, err = f.validator.Current(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, CityIntroduction, current)

	var changed *events.StageChanged
	for changed == nil {
		select {
		case evt := <-sub:
			if sc, ok := evt.Payload.(events.StageChanged); ok {
				changed = &sc
			}
		case <-time.After(time.Second):
			t.Fatal("expected stage.changed event")
		}
	}
	assert.Equal(t, events.StageChanged{From: 1, To: 2}, *changed)

	// skipping is rejected and leaves the stage alone
	d, err = f.validator.Advance(ctx, "client-a", ItineraryReview, paris)
	require.NoError(t, err)
	assert.False(t, d.CanProgress)

	current, err = f.validator.Current(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, CityIntroduction, current)

	require.NoError(t, f.validator.Reset(ctx, "client-a"))
	current, err = f.validator.Current(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, GatherParameters, current)
}
