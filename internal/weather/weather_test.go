package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/upstream"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRequest_Validate(t *testing.T) {
	today := day(2025, 6, 1)
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "ok", req: Request{Lat: 48.8, Lon: 2.3, Start: day(2025, 5, 1), End: day(2025, 5, 30)}},
		{name: "bad lat", req: Request{Lat: 91, Start: day(2025, 5, 1), End: day(2025, 5, 2)}, wantErr: ErrInvalidCoordinates},
		{name: "bad units", req: Request{Units: "kelvin", Start: day(2025, 5, 1), End: day(2025, 5, 2)}, wantErr: ErrInvalidUnits},
		{name: "too early", req: Request{Start: day(1979, 1, 1), End: day(1979, 1, 5)}, wantErr: ErrInvalidRange},
		{name: "future", req: Request{Start: day(2025, 5, 30), End: day(2025, 6, 2)}, wantErr: ErrInvalidRange},
		{name: "reversed", req: Request{Start: day(2025, 5, 3), End: day(2025, 5, 2)}, wantErr: ErrInvalidRange},
		{name: "too long", req: Request{Start: day(2025, 3, 1), End: day(2025, 4, 15)}, wantErr: ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(today)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "metric", tt.req.Units)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChartWindow(t *testing.T) {
	today := day(2025, 6, 1)

	// a five day trip last March gains 12 days before and 13 after
	start, end := ChartWindow(day(2025, 3, 10), day(2025, 3, 14), today)
	assert.Equal(t, day(2025, 2, 26), start)
	assert.Equal(t, day(2025, 3, 27), end)
	assert.Equal(t, ChartDays, int(end.Sub(start).Hours()/24)+1)

	// a future trip is moved to the previous year
	start, end = ChartWindow(day(2025, 12, 20), day(2025, 12, 24), today)
	assert.Equal(t, 2024, start.Year())
	assert.False(t, end.After(today))
	assert.Equal(t, ChartDays, int(end.Sub(start).Hours()/24)+1)
}

func TestHistorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("appid"))
		assert.Equal(t, "48.856600", q.Get("lat"))
		fmt.Fprintf(w, `{"date":%q,"temperature":{"max":21.5},"precipitation":{"total":1.2}}`, q.Get("date"))
	}))
	defer srv.Close()

	c := NewClient(upstream.NewClient("weather", upstream.Options{RatePerSecond: 1000, Burst: 50}, nil, logging.Discard()), srv.URL, "key", logging.Discard())
	c.now = func() time.Time { return day(2025, 6, 1) }

	days, err := c.Historical(context.Background(), Request{
		Lat: 48.8566, Lon: 2.3522,
		Start: day(2025, 5, 1), End: day(2025, 5, 5),
	})
	require.NoError(t, err)
	require.Len(t, days, 5)
	assert.Equal(t, "2025-05-01", days[0].Date)
	assert.Equal(t, "2025-05-05", days[4].Date)
	assert.Equal(t, 21.5, days[2].TempMax)
	assert.Equal(t, 1.2, days[2].Precipitation)
}

func TestHistorical_FailureFailsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "2025-05-03" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(upstream.NewClient("weather", upstream.Options{RatePerSecond: 1000, Burst: 50}, nil, logging.Discard()), srv.URL, "key", logging.Discard())
	c.now = func() time.Time { return day(2025, 6, 1) }

	_, err := c.Historical(context.Background(), Request{Start: day(2025, 5, 1), End: day(2025, 5, 5)})
	assert.Error(t, err)
}
