package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/travelrizz/travelrizz-backend/internal/upstream"
)

// ISODate is the layout of the API's dates.
const ISODate = "2006-01-02"

// ChartDays is the length of the window shown on the weather chart.
const ChartDays = 30

// MaxRangeDays bounds one historical request.
const MaxRangeDays = 31

var earliest = time.Date(1979, 1, 2, 0, 0, 0, 0, time.UTC)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates. Latitude must be between -90 and 90, longitude between -180 and 180")
	ErrInvalidUnits       = errors.New("invalid units. Must be one of: standard, metric, imperial")
	ErrInvalidRange       = errors.New("invalid date range. Dates must be between 1979-01-02 and today, and the range must not exceed 31 days")
)

// Request asks for daily summaries of every date in [Start, End].
type Request struct {
	Lat   float64
	Lon   float64
	Start time.Time
	End   time.Time
	Units string
}

// Day is one daily summary.
type Day struct {
	Date          string  `json:"date"`
	TempMax       float64 `json:"tempMax"`
	Precipitation float64 `json:"precipitation"`
}

type daySummary struct {
	Date        string `json:"date"`
	Temperature struct {
		Max float64 `json:"max"`
	} `json:"temperature"`
	Precipitation struct {
		Total float64 `json:"total"`
	} `json:"precipitation"`
}

// Validate checks coordinates, units, and the date range against today.
func (r *Request) Validate(today time.Time) error {
	if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
		return ErrInvalidCoordinates
	}
	if r.Units == "" {
		r.Units = "metric"
	}
	switch r.Units {
	case "standard", "metric", "imperial":
	default:
		return ErrInvalidUnits
	}
	if r.Start.Before(earliest) || r.End.After(today) || r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	if r.End.Sub(r.Start) > MaxRangeDays*24*time.Hour {
		return ErrInvalidRange
	}
	return nil
}

// Dates lists every day of the request.
func (r Request) Dates() []string {
	var out []string
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(ISODate))
	}
	return out
}

// ChartWindow extends the trip [start, end] symmetrically to ChartDays
// days, with the odd day after, and moves it back a year at a time until
// it ends before today.
func ChartWindow(start, end, today time.Time) (time.Time, time.Time) {
	days := int(end.Sub(start).Hours()/24) + 1
	extra := ChartDays - days
	if extra < 0 {
		extra = 0
	}
	before := extra / 2
	after := extra - before

	start = start.AddDate(0, 0, -before)
	end = end.AddDate(0, 0, after)

	for end.After(today) {
		start = start.AddDate(-1, 0, 0)
		end = end.AddDate(-1, 0, 0)
	}
	return start, end
}

// Client fetches historical daily summaries from OpenWeather.
type Client struct {
	client  *upstream.Client
	baseURL string
	apiKey  string
	logger  *logrus.Logger
	now     func() time.Time
}

// NewClient creates a weather client
func NewClient(client *upstream.Client, baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		now:     time.Now,
	}
}

// Today returns the current UTC date.
func (c *Client) Today() time.Time {
	return c.now().UTC().Truncate(24 * time.Hour)
}

// Historical validates req and fetches one summary per date concurrently.
// Any failed date fails the whole request.
func (c *Client) Historical(ctx context.Context, req Request) ([]Day, error) {
	if err := req.Validate(c.Today()); err != nil {
		return nil, err
	}

	dates := req.Dates()
	days := make([]Day, len(dates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			day, err := c.fetchDay(ctx, req, date)
			if err != nil {
				return fmt.Errorf("weather for %s: %w", date, err)
			}
			days[i] = day
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"lat": req.Lat,
			"lon": req.Lon,
		}).Error("Failed to fetch weather data")
		return nil, err
	}
	return days, nil
}

func (c *Client) fetchDay(ctx context.Context, req Request, date string) (Day, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(req.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(req.Lon, 'f', 6, 64))
	q.Set("date", date)
	q.Set("units", req.Units)
	q.Set("appid", c.apiKey)

	var summary daySummary
	if err := c.client.Do(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil, nil, &summary); err != nil {
		return Day{}, err
	}
	if summary.Date == "" {
		summary.Date = date
	}
	return Day{
		Date:          summary.Date,
		TempMax:       summary.Temperature.Max,
		Precipitation: summary.Precipitation.Total,
	}, nil
}
