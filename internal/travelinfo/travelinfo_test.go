package travelinfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/maps"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
)

type fakeRoutes struct {
	calls int
	err   error
}

func (f *fakeRoutes) Compute(_ context.Context, _, _ places.LatLng, _ ...places.LatLng) (*maps.Route, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &maps.Route{Duration: 1500 * time.Second, DistanceMeters: 12345, EncodedPolyline: "abc"}, nil
}

func at(id string, lat, lng float64) places.Place {
	return places.Place{ID: id, Location: &places.LatLng{Latitude: lat, Longitude: lng}}
}

func newCache(routes RouteComputer) (*Cache, *time.Time) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewCache(storage.NewMemoryStore(0), storage.NewLocker(), routes, 24*time.Hour, logging.Discard())
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLookup_CachesUnorderedPair(t *testing.T) {
	routes := &fakeRoutes{}
	c, _ := newCache(routes)
	ctx := context.Background()

	a, b := at("a", 48.86, 2.33), at("b", 48.85, 2.35)

	info := c.Lookup(ctx, "client-a", a, b)
	assert.Equal(t, "25 mins", info.Duration)
	assert.Equal(t, "12.3 km", info.Distance)
	assert.False(t, info.Error)

	again := c.Lookup(ctx, "client-a", b, a)
	assert.Equal(t, info.Duration, again.Duration)
	assert.Equal(t, 1, routes.calls)

	// scopes do not share entries
	c.Lookup(ctx, "client-b", a, b)
	assert.Equal(t, 2, routes.calls)
}

func TestLookup_ExpiresAfterTTL(t *testing.T) {
	routes := &fakeRoutes{}
	c, now := newCache(routes)
	ctx := context.Background()
	a, b := at("a", 1, 1), at("b", 2, 2)

	c.Lookup(ctx, "client-a", a, b)
	*now = now.Add(23 * time.Hour)
	c.Lookup(ctx, "client-a", a, b)
	assert.Equal(t, 1, routes.calls)

	*now = now.Add(2 * time.Hour)
	c.Lookup(ctx, "client-a", a, b)
	assert.Equal(t, 2, routes.calls)
}

func TestLookup_FailureIsSentinelAndNotCached(t *testing.T) {
	routes := &fakeRoutes{err: errors.New("upstream down")}
	c, _ := newCache(routes)
	ctx := context.Background()
	a, b := at("a", 1, 1), at("b", 2, 2)

	info := c.Lookup(ctx, "client-a", a, b)
	assert.True(t, info.Error)
	assert.Equal(t, Unknown, info.Duration)
	assert.Equal(t, Unknown, info.Distance)

	routes.err = nil
	info = c.Lookup(ctx, "client-a", a, b)
	assert.False(t, info.Error)
	assert.Equal(t, 2, routes.calls)
}

func TestLookup_MissingLocation(t *testing.T) {
	routes := &fakeRoutes{}
	c, _ := newCache(routes)

	info := c.Lookup(context.Background(), "client-a", places.Place{ID: "a"}, at("b", 1, 1))
	assert.True(t, info.Error)
	assert.Equal(t, 0, routes.calls)
}

func TestClear(t *testing.T) {
	routes := &fakeRoutes{}
	c, _ := newCache(routes)
	ctx := context.Background()
	a, b := at("a", 1, 1), at("b", 2, 2)

	c.Lookup(ctx, "client-a", a, b)
	require.NoError(t, c.Clear(ctx, "client-a"))
	c.Lookup(ctx, "client-a", a, b)
	assert.Equal(t, 2, routes.calls)
}

func TestLookup_NullCacheIsEmpty(t *testing.T) {
	routes := &fakeRoutes{}
	backend := storage.NewMemoryStore(0)
	c := NewCache(backend, storage.NewLocker(), routes, 24*time.Hour, logging.Discard())
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "client-a", storage.KeyTravelInfo, []byte("null")))

	a, b := at("a", 48.86, 2.33), at("b", 48.85, 2.35)
	info := c.Lookup(ctx, "client-a", a, b)
	assert.False(t, info.Error)
	assert.Equal(t, 1, routes.calls)

	c.Lookup(ctx, "client-a", b, a)
	assert.Equal(t, 1, routes.calls)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("x", "y"), Key("y", "x"))
	assert.NotEqual(t, Key("x", "y"), Key("x", "z"))
}
