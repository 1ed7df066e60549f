package travelinfo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/maps"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
)

// Unknown is rendered when a lookup cannot be answered.
const Unknown = "--"

// DefaultTTL is how long a computed pair stays fresh.
const DefaultTTL = 24 * time.Hour

// Info is the travel time and distance between two places.
type Info struct {
	Duration  string    `json:"duration"`
	Distance  string    `json:"distance"`
	Timestamp time.Time `json:"timestamp"`
	Error     bool      `json:"error,omitempty"`
	Polyline  string    `json:"polyline,omitempty"`
}

func sentinel(now time.Time) Info {
	return Info{Duration: Unknown, Distance: Unknown, Timestamp: now, Error: true}
}

// RouteComputer is the routing backend.
type RouteComputer interface {
	Compute(ctx context.Context, origin, destination places.LatLng, intermediates ...places.LatLng) (*maps.Route, error)
}

// Cache memoizes pairwise lookups per client.
type Cache struct {
	store  storage.Store
	locker *storage.Locker
	routes RouteComputer
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewCache creates a travel-info cache
func NewCache(store storage.Store, locker *storage.Locker, routes RouteComputer, ttl time.Duration, logger *logrus.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:  store,
		locker: locker,
		routes: routes,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Key identifies the unordered pair of place ids.
func Key(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

func (c *Cache) fresh(info Info) bool {
	return !info.Error && c.now().Sub(info.Timestamp) < c.ttl
}

// Lookup returns the travel info between from and to. It never fails:
// missing coordinates and routing errors produce the "--" sentinel, which
// is not cached.
func (c *Cache) Lookup(ctx context.Context, clientID string, from, to places.Place) Info {
	if from.Location == nil || to.Location == nil {
		return sentinel(c.now())
	}

	key := Key(from.ID, to.ID)
	entries := c.load(ctx, clientID)
	if cached, ok := entries[key]; ok && c.fresh(cached) {
		return cached
	}

	route, err := c.routes.Compute(ctx, *from.Location, *to.Location)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"client_id": clientID,
			"from":      from.ID,
			"to":        to.ID,
		}).Warn("Travel info lookup failed")
		return sentinel(c.now())
	}

	info := Info{
		Duration:  FormatDuration(route.Duration),
		Distance:  FormatDistance(route.DistanceMeters),
		Timestamp: c.now(),
		Polyline:  route.EncodedPolyline,
	}
	c.put(ctx, clientID, key, info)
	return info
}

// Clear drops every cached pair of the client.
func (c *Cache) Clear(ctx context.Context, clientID string) error {
	unlock := c.locker.Lock(clientID, storage.KeyTravelInfo)
	defer unlock()
	return c.store.Delete(ctx, clientID, storage.KeyTravelInfo)
}

func (c *Cache) load(ctx context.Context, clientID string) map[string]Info {
	unlock := c.locker.Lock(clientID, storage.KeyTravelInfo)
	defer unlock()
	return c.loadLocked(ctx, clientID)
}

func (c *Cache) loadLocked(ctx context.Context, clientID string) map[string]Info {
	entries := map[string]Info{}
	err := storage.GetJSON(ctx, c.store, clientID, storage.KeyTravelInfo, &entries)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.WithError(err).WithField("client_id", clientID).Warn("Discarding travel info cache")
		return map[string]Info{}
	}
	if entries == nil {
		entries = map[string]Info{}
	}
	return entries
}

func (c *Cache) put(ctx context.Context, clientID, key string, info Info) {
	unlock := c.locker.Lock(clientID, storage.KeyTravelInfo)
	defer unlock()

	entries := c.loadLocked(ctx, clientID)
	for k, v := range entries {
		if !c.fresh(v) {
			delete(entries, k)
		}
	}
	entries[key] = info

	if err := storage.SetJSON(ctx, c.store, clientID, storage.KeyTravelInfo, entries); err != nil {
		c.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to persist travel info cache")
	}
}

// FormatDuration renders whole minutes, e.g. "25 mins".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%d mins", int(math.Round(d.Minutes())))
}

// FormatDistance renders kilometres with one decimal, e.g. "12.3 km".
func FormatDistance(meters int) string {
	return fmt.Sprintf("%.1f km", float64(meters)/1000)
}
