package maps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/upstream"
)

// ErrNoRoute is returned when the Routes API finds nothing.
var ErrNoRoute = errors.New("no route found")

const (
	routeFieldMask    = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline"
	dayRouteFieldMask = routeFieldMask + ",routes.legs.duration,routes.legs.distanceMeters"
)

type waypoint struct {
	Location struct {
		LatLng places.LatLng `json:"latLng"`
	} `json:"location"`
}

func newWaypoint(ll places.LatLng) waypoint {
	var w waypoint
	w.Location.LatLng = ll
	return w
}

type routeModifiers struct {
	AvoidTolls    bool `json:"avoidTolls"`
	AvoidHighways bool `json:"avoidHighways"`
	AvoidFerries  bool `json:"avoidFerries"`
}

type computeRoutesRequest struct {
	Origin                   waypoint       `json:"origin"`
	Destination              waypoint       `json:"destination"`
	Intermediates            []waypoint     `json:"intermediates,omitempty"`
	TravelMode               string         `json:"travelMode"`
	RoutingPreference        string         `json:"routingPreference"`
	ComputeAlternativeRoutes bool           `json:"computeAlternativeRoutes"`
	LanguageCode             string         `json:"languageCode"`
	RouteModifiers           routeModifiers `json:"routeModifiers"`
}

type apiLeg struct {
	Duration       string `json:"duration"`
	DistanceMeters int    `json:"distanceMeters"`
}

type apiRoute struct {
	Duration       string `json:"duration"`
	DistanceMeters int    `json:"distanceMeters"`
	Polyline       struct {
		EncodedPolyline string `json:"encodedPolyline"`
	} `json:"polyline"`
	Legs []apiLeg `json:"legs"`
}

type computeRoutesResponse struct {
	Routes []apiRoute `json:"routes"`
}

// Leg is one hop between consecutive waypoints.
type Leg struct {
	Duration       time.Duration `json:"duration"`
	DistanceMeters int           `json:"distanceMeters"`
}

// Route is a driving route through two or more waypoints.
type Route struct {
	Duration        time.Duration `json:"duration"`
	DistanceMeters  int           `json:"distanceMeters"`
	EncodedPolyline string        `json:"encodedPolyline,omitempty"`
	Legs            []Leg         `json:"legs,omitempty"`
}

// Path decodes the route polyline.
func (r Route) Path() ([]places.LatLng, error) {
	return DecodePolyline(r.EncodedPolyline)
}

// RoutesClient computes driving routes with the Google Routes API.
type RoutesClient struct {
	client  *upstream.Client
	baseURL string
	apiKey  string
}

// NewRoutesClient creates a Routes client
func NewRoutesClient(client *upstream.Client, baseURL, apiKey string) *RoutesClient {
	return &RoutesClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Compute returns the traffic-aware driving route from origin to destination
// through the intermediates in order.
func (c *RoutesClient) Compute(ctx context.Context, origin, destination places.LatLng, intermediates ...places.LatLng) (*Route, error) {
	req := computeRoutesRequest{
		Origin:            newWaypoint(origin),
		Destination:       newWaypoint(destination),
		TravelMode:        "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE",
		LanguageCode:      "en-US",
	}
	mask := routeFieldMask
	if len(intermediates) > 0 {
		mask = dayRouteFieldMask
		for _, ll := range intermediates {
			req.Intermediates = append(req.Intermediates, newWaypoint(ll))
		}
	}

	headers := map[string]string{
		"X-Goog-Api-Key":   c.apiKey,
		"X-Goog-FieldMask": mask,
	}

	var resp computeRoutesResponse
	if err := c.client.Do(ctx, http.MethodPost, c.baseURL+"/directions/v2:computeRoutes", headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, ErrNoRoute
	}

	raw := resp.Routes[0]
	duration, err := parseDuration(raw.Duration)
	if err != nil {
		return nil, err
	}
	route := &Route{
		Duration:        duration,
		DistanceMeters:  raw.DistanceMeters,
		EncodedPolyline: raw.Polyline.EncodedPolyline,
	}
	for _, leg := range raw.Legs {
		d, err := parseDuration(leg.Duration)
		if err != nil {
			return nil, err
		}
		route.Legs = append(route.Legs, Leg{Duration: d, DistanceMeters: leg.DistanceMeters})
	}
	return route, nil
}

// parseDuration reads the API's "123s" form.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid route duration %q: %w", s, err)
	}
	return d, nil
}

// DecodePolyline decodes an encoded polyline into coordinates.
func DecodePolyline(encoded string) ([]places.LatLng, error) {
	if encoded == "" {
		return []places.LatLng{}, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid polyline: %w", err)
	}
	out := make([]places.LatLng, len(coords))
	for i, c := range coords {
		out[i] = places.LatLng{Latitude: c[0], Longitude: c[1]}
	}
	return out, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(path []places.LatLng) string {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}
