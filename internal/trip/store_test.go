package trip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
)

func TestStore_PutPatchGet(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore(time.Hour)
	s := NewStore(backend, storage.NewLocker(), logging.Discard())

	d, err := s.Get(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, Details{}, d)

	_, err = s.Put(ctx, "client-a", Details{
		Destination: "Paris, France",
		StartDate:   "01/06/2025",
		EndDate:     "03/06/2025",
		Preferences: []Preference{PreferenceCulture},
		Language:    "en",
	})
	require.NoError(t, err)

	budget := BudgetHigh
	d, err = s.Patch(ctx, "client-a", Patch{Budget: &budget})
	require.NoError(t, err)
	assert.Equal(t, "Paris, France", d.Destination)
	assert.Equal(t, BudgetHigh, d.Budget)

	d, err = s.Get(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, BudgetHigh, d.Budget)
	assert.Equal(t, 3, d.Days())
}

func TestStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore(time.Hour), storage.NewLocker(), logging.Discard())

	_, err := s.Put(ctx, "client-a", Details{StartDate: "05/06/2025", EndDate: "01/06/2025"})
	assert.ErrorIs(t, err, ErrDateOrder)

	bad := Budget("$$$$$")
	_, err = s.Patch(ctx, "client-a", Patch{Budget: &bad})
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestStore_CorruptIsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore(time.Hour)
	require.NoError(t, backend.Set(ctx, "client-a", storage.KeyTravelDetails, []byte("{not json")))

	s := NewStore(backend, storage.NewLocker(), logging.Discard())
	d, err := s.Get(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, Details{}, d)

	_, err = backend.Get(ctx, "client-a", storage.KeyTravelDetails)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
