package maps

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
	"github.com/travelrizz/travelrizz-backend/internal/upstream"
)

// ErrSearchTimeout is returned when a place search outlives its deadline.
var ErrSearchTimeout = errors.New("place search timed out")

const (
	searchRadiusMeters = 20000.0
	defaultMaxResults  = 5
	placesFieldMask    = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.primaryType,places.primaryTypeDisplayName,places.photos.name"
)

type circle struct {
	Center places.LatLng `json:"center"`
	Radius float64       `json:"radius"`
}

type area struct {
	Circle circle `json:"circle"`
}

type textSearchRequest struct {
	TextQuery      string `json:"textQuery"`
	LocationBias   *area  `json:"locationBias,omitempty"`
	MaxResultCount int    `json:"maxResultCount,omitempty"`
	LanguageCode   string `json:"languageCode,omitempty"`
}

type nearbySearchRequest struct {
	IncludedTypes       []string `json:"includedTypes"`
	MaxResultCount      int      `json:"maxResultCount"`
	LocationRestriction area     `json:"locationRestriction"`
	LanguageCode        string   `json:"languageCode,omitempty"`
}

type searchResponse struct {
	Places []places.Place `json:"places"`
}

// PlacesClient searches the Google Places API (v1).
type PlacesClient struct {
	client  *upstream.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	logger  *logrus.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewPlacesClient creates a Places client. timeout bounds each search.
func NewPlacesClient(client *upstream.Client, baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *PlacesClient {
	return &PlacesClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		logger:  logger,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *PlacesClient) headers() map[string]string {
	return map[string]string{
		"X-Goog-Api-Key":   c.apiKey,
		"X-Goog-FieldMask": placesFieldMask,
	}
}

// SearchText returns up to maxResults places matching query near center.
// Upstream failures yield an empty result; only the timeout is an error.
func (c *PlacesClient) SearchText(ctx context.Context, query string, center *places.LatLng, maxResults int) ([]places.Place, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	req := textSearchRequest{TextQuery: query, MaxResultCount: maxResults}
	if center != nil {
		req.LocationBias = &area{Circle: circle{Center: *center, Radius: searchRadiusMeters}}
	}

	return c.race(ctx, func(ctx context.Context) ([]places.Place, error) {
		var resp searchResponse
		if err := c.client.Do(ctx, http.MethodPost, c.baseURL+"/places:searchText", c.headers(), req, &resp); err != nil {
			return nil, err
		}
		return normalizePlaces(resp.Places), nil
	}, logrus.Fields{"query": query})
}

// SearchOne returns the best match for query, or nil.
func (c *PlacesClient) SearchOne(ctx context.Context, query string, center *places.LatLng) (*places.Place, error) {
	found, err := c.SearchText(ctx, query, center, 1)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// SearchNearby returns places of the given types within 20km of center.
func (c *PlacesClient) SearchNearby(ctx context.Context, center places.LatLng, types []string, maxResults int) ([]places.Place, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	req := nearbySearchRequest{
		IncludedTypes:       types,
		MaxResultCount:      maxResults,
		LocationRestriction: area{Circle: circle{Center: center, Radius: searchRadiusMeters}},
	}

	return c.race(ctx, func(ctx context.Context) ([]places.Place, error) {
		var resp searchResponse
		if err := c.client.Do(ctx, http.MethodPost, c.baseURL+"/places:searchNearby", c.headers(), req, &resp); err != nil {
			return nil, err
		}
		return normalizePlaces(resp.Places), nil
	}, logrus.Fields{"types": types})
}

// SearchByPreferences runs a nearby search over types picked from the
// preferences (or the explicit types) and falls back to a text search.
func (c *PlacesClient) SearchByPreferences(ctx context.Context, center places.LatLng, prefs []trip.Preference, types []string, maxResults int) ([]places.Place, error) {
	if len(prefs) == 0 && len(types) == 0 {
		return []places.Place{}, nil
	}
	if len(prefs) > 0 {
		c.rndMu.Lock()
		types = places.TypesForPreferences(prefs, c.rnd)
		c.rndMu.Unlock()
	}

	found, err := c.SearchNearby(ctx, center, types, maxResults)
	if err != nil || len(found) > 0 {
		return found, err
	}

	query := types[0]
	if len(prefs) > 0 {
		query = string(prefs[0])
	}
	c.logger.WithField("query", query).Debug("Nearby search empty, falling back to text search")
	return c.SearchText(ctx, query, &center, maxResults)
}

// race runs fn with the search deadline. A failing search is logged and
// reported as empty.
func (c *PlacesClient) race(ctx context.Context, fn func(context.Context) ([]places.Place, error), fields logrus.Fields) ([]places.Place, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		places []places.Place
		err    error
	}
	done := make(chan result, 1)
	go func() {
		found, err := fn(ctx)
		done <- result{found, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, ErrSearchTimeout
			}
			c.logger.WithError(r.err).WithFields(fields).Error("Place search failed")
			return []places.Place{}, nil
		}
		return r.places, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSearchTimeout
		}
		return nil, ctx.Err()
	}
}

func normalizePlaces(in []places.Place) []places.Place {
	out := make([]places.Place, 0, len(in))
	for _, p := range in {
		if p.PrimaryType == "" {
			p.PrimaryType = "place"
		}
		p.DayIndex = places.Unplaced
		p.OrderIndex = places.Unplaced
		out = append(out, p)
	}
	return out
}
