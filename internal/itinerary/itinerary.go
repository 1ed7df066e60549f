package itinerary

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/maps"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/travelinfo"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

var (
	ErrNoDates       = errors.New("trip dates are not set")
	ErrDayOutOfRange = errors.New("day is outside the trip")
	ErrTooFewStops   = errors.New("a route needs at least two located places")
)

// Day is one day of the planner.
type Day struct {
	ID     string         `json:"id"`
	Index  int            `json:"dayIndex"`
	Date   string         `json:"date"`
	Places []places.Place `json:"places"`
}

// Itinerary is the day-by-day view of the saved places.
type Itinerary struct {
	Destination string         `json:"destination"`
	StartDate   string         `json:"startDate"`
	EndDate     string         `json:"endDate"`
	Days        []Day          `json:"days"`
	Unplaced    []places.Place `json:"unplaced"`
}

// Build lays the saved places out over the trip days. Places assigned to a
// day past the end of the trip are reported as unplaced.
func Build(details trip.Details, saved []places.Place) (*Itinerary, error) {
	numDays := details.Days()
	if numDays == 0 {
		return nil, ErrNoDates
	}
	start, _ := trip.ParseDate(details.StartDate)

	it := &Itinerary{
		Destination: details.Destination,
		StartDate:   details.StartDate,
		EndDate:     details.EndDate,
		Days:        make([]Day, numDays),
		Unplaced:    []places.Place{},
	}
	for i := range it.Days {
		it.Days[i] = Day{
			ID:     fmt.Sprintf("day-%d", i+1),
			Index:  i,
			Date:   start.AddDate(0, 0, i).Format("2006-01-02"),
			Places: []places.Place{},
		}
	}

	for _, p := range saved {
		if !p.Placed() || p.DayIndex >= numDays {
			it.Unplaced = append(it.Unplaced, p)
			continue
		}
		it.Days[p.DayIndex].Places = append(it.Days[p.DayIndex].Places, p)
	}
	for i := range it.Days {
		day := it.Days[i].Places
		sort.SliceStable(day, func(a, b int) bool { return day[a].OrderIndex < day[b].OrderIndex })
	}
	return it, nil
}

// DirectionsURL links to Google Maps driving directions through the stops.
func DirectionsURL(stops []places.LatLng) string {
	if len(stops) < 2 {
		return ""
	}
	q := url.Values{}
	q.Set("api", "1")
	q.Set("origin", formatLatLng(stops[0]))
	q.Set("destination", formatLatLng(stops[len(stops)-1]))
	if len(stops) > 2 {
		q.Set("waypoints", strings.Join(lo.Map(stops[1:len(stops)-1], func(ll places.LatLng, _ int) string {
			return formatLatLng(ll)
		}), "|"))
	}
	q.Set("travelmode", "driving")
	return "https://www.google.com/maps/dir/?" + q.Encode()
}

func formatLatLng(ll places.LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", ll.Latitude, ll.Longitude)
}

func stopsOf(day Day) []places.LatLng {
	return lo.FilterMap(day.Places, func(p places.Place, _ int) (places.LatLng, bool) {
		if p.Location == nil {
			return places.LatLng{}, false
		}
		return *p.Location, true
	})
}

// DayRoute is the driving route through one day's places.
type DayRoute struct {
	Day           int             `json:"dayIndex"`
	Duration      string          `json:"duration"`
	Distance      string          `json:"distance"`
	Route         *maps.Route     `json:"route"`
	Path          []places.LatLng `json:"path"`
	DirectionsURL string          `json:"directionsUrl"`
}

// Trips reads the client's trip details.
type Trips interface {
	Get(ctx context.Context, clientID string) (trip.Details, error)
}

// SavedPlaces is the saved place store the planner reads and rearranges.
type SavedPlaces interface {
	List(ctx context.Context, clientID string) ([]places.Place, error)
	Distribute(ctx context.Context, clientID string, numDays int) ([]places.Place, error)
}

// RouteComputer is the routing backend.
type RouteComputer interface {
	Compute(ctx context.Context, origin, destination places.LatLng, intermediates ...places.LatLng) (*maps.Route, error)
}

// Service assembles itineraries, routes and exports for a client.
type Service struct {
	trips  Trips
	saved  SavedPlaces
	routes RouteComputer
	zones  ZoneFinder
	now    func() time.Time
	logger *logrus.Logger
}

// NewService creates an itinerary service. zones may be nil, in which case
// exports use UTC.
func NewService(trips Trips, saved SavedPlaces, routes RouteComputer, zones ZoneFinder, logger *logrus.Logger) *Service {
	return &Service{
		trips:  trips,
		saved:  saved,
		routes: routes,
		zones:  zones,
		now:    time.Now,
		logger: logger,
	}
}

// Get returns the client's itinerary.
func (s *Service) Get(ctx context.Context, clientID string) (*Itinerary, error) {
	details, err := s.trips.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	saved, err := s.saved.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return Build(details, saved)
}

// Distribute spreads every saved place evenly over the trip days.
func (s *Service) Distribute(ctx context.Context, clientID string) (*Itinerary, error) {
	details, err := s.trips.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	numDays := details.Days()
	if numDays == 0 {
		return nil, ErrNoDates
	}
	saved, err := s.saved.Distribute(ctx, clientID, numDays)
	if err != nil {
		return nil, err
	}
	return Build(details, saved)
}

// DayRoute computes the route through the located places of one day, in order.
func (s *Service) DayRoute(ctx context.Context, clientID string, day int) (*DayRoute, error) {
	it, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if day < 0 || day >= len(it.Days) {
		return nil, ErrDayOutOfRange
	}

	stops := stopsOf(it.Days[day])
	if len(stops) < 2 {
		return nil, ErrTooFewStops
	}

	route, err := s.routes.Compute(ctx, stops[0], stops[len(stops)-1], stops[1:len(stops)-1]...)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"client_id": clientID,
			"day":       day,
		}).Warn("Failed to compute day route")
		return nil, err
	}

	path, err := route.Path()
	if err != nil {
		return nil, err
	}

	return &DayRoute{
		Day:           day,
		Duration:      travelinfo.FormatDuration(route.Duration),
		Distance:      travelinfo.FormatDistance(route.DistanceMeters),
		Route:         route,
		Path:          path,
		DirectionsURL: DirectionsURL(stops),
	}, nil
}
