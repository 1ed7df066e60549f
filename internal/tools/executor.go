package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/currency"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/stage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
	"github.com/travelrizz/travelrizz-backend/internal/weather"
)

const defaultCarouselResults = 5

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// PlaceSearcher finds places for the place card and carousel.
type PlaceSearcher interface {
	SearchOne(ctx context.Context, query string, center *places.LatLng) (*places.Place, error)
	SearchText(ctx context.Context, query string, center *places.LatLng, maxResults int) ([]places.Place, error)
}

type SavedPlaces interface {
	List(ctx context.Context, clientID string) ([]places.Place, error)
}

type Trips interface {
	Get(ctx context.Context, clientID string) (trip.Details, error)
}

// Stages advances the planning stage on behalf of the model.
type Stages interface {
	Current(ctx context.Context, clientID string) (int, error)
	Advance(ctx context.Context, clientID string, next int, details trip.Details) (stage.Decision, error)
}

type Converter interface {
	Convert(ctx context.Context, amount float64, from, to string) (*currency.Conversion, error)
}

// Executor runs tool calls for a client.
type Executor struct {
	places   PlaceSearcher
	saved    SavedPlaces
	trips    Trips
	stages   Stages
	currency Converter
	today    func() time.Time
	logger   *logrus.Logger
}

func NewExecutor(searcher PlaceSearcher, saved SavedPlaces, trips Trips, stages Stages, converter Converter, logger *logrus.Logger) *Executor {
	return &Executor{
		places:   searcher,
		saved:    saved,
		trips:    trips,
		stages:   stages,
		currency: converter,
		today: func() time.Time {
			return time.Now().UTC().Truncate(24 * time.Hour)
		},
		logger: logger,
	}
}

// Execute validates and runs one call. Failures are reported in the result,
// never as a Go error, so one bad call does not sink the rest of a reply.
func (e *Executor) Execute(ctx context.Context, clientID string, call Call) Result {
	log := e.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"tool":      call.Name,
		"call_id":   call.ID,
	})

	kind, err := ParseKind(call.Name)
	if err != nil {
		log.Warn("Model requested an unknown tool")
		r := failure(ErrorProps{k: Kind(call.Name)}, err)
		r.ToolCallID = call.ID
		return r
	}
	if err := Validate(kind, call.Arguments); err != nil {
		log.WithError(err).Warn("Tool arguments failed validation")
		r := failure(ErrorProps{k: kind}, err)
		r.ToolCallID = call.ID
		return r
	}

	args := []byte(call.Arguments)
	if len(args) == 0 {
		args = []byte("{}")
	}

	var r Result
	switch kind {
	case KindBudgetSelector:
		r = decodeAndRun(kind, args, func(a BudgetProps) Result { return success(a) })
	case KindPreferenceSelector:
		r = decodeAndRun(kind, args, func(a PreferenceProps) Result {
			a.CurrentPreferences = lo.Uniq(a.CurrentPreferences)
			return success(a)
		})
	case KindDatePicker:
		r = decodeAndRun(kind, args, func(a DateRange) Result { return success(DatePickerProps{Dates: a}) })
	case KindLanguageSelector:
		r = decodeAndRun(kind, args, func(a LanguageProps) Result { return success(a) })
	case KindTransportSelector:
		r = decodeAndRun(kind, args, func(a TransportProps) Result { return success(a) })
	case KindPlaceCard:
		r = decodeAndRun(kind, args, func(a searchArgs) Result { return e.placeCard(ctx, a) })
	case KindCarousel:
		r = decodeAndRun(kind, args, func(a searchArgs) Result { return e.carousel(ctx, a) })
	case KindDetailsCard:
		r = decodeAndRun(kind, args, func(a DetailsCardProps) Result { return success(a) })
	case KindWeatherChart:
		r = decodeAndRun(kind, args, func(a weatherArgs) Result { return e.weatherChart(a) })
	case KindSavedPlacesList:
		r = e.savedPlaces(ctx, clientID)
	case KindStageProgress:
		r = decodeAndRun(kind, args, func(a stageArgs) Result { return e.stageProgress(ctx, clientID, a) })
	case KindQuickResponse:
		r = decodeAndRun(kind, args, func(a QuickResponseProps) Result {
			a.Responses = lo.Filter(lo.Uniq(a.Responses), func(s string, _ int) bool {
				return strings.TrimSpace(s) != ""
			})
			if len(a.Responses) == 0 {
				return empty(a)
			}
			return success(a)
		})
	case KindCurrencyConverter:
		r = decodeAndRun(kind, args, func(a currencyArgs) Result { return e.convert(ctx, clientID, a) })
	default:
		panic(fmt.Sprintf("tools: unhandled kind %s", kind))
	}

	if r.Status == StatusError {
		log.WithField("error", r.Error).Warn("Tool call failed")
	}
	r.ToolCallID = call.ID
	return r
}

func decodeAndRun[T any](kind Kind, args []byte, run func(T) Result) Result {
	var a T
	if err := json.Unmarshal(args, &a); err != nil {
		return failure(ErrorProps{k: kind}, fmt.Errorf("invalid %s arguments: %w", kind, err))
	}
	return run(a)
}

type searchArgs struct {
	SearchText string        `json:"searchText"`
	Location   places.LatLng `json:"location"`
	MaxResults int           `json:"maxResults"`
}

func (e *Executor) placeCard(ctx context.Context, a searchArgs) Result {
	place, err := e.places.SearchOne(ctx, a.SearchText, &a.Location)
	if err != nil {
		e.logger.WithError(err).WithField("query", a.SearchText).Warn("Place search failed")
		return failure(PlaceCardProps{}, err)
	}
	if place == nil {
		return empty(PlaceCardProps{})
	}
	return success(PlaceCardProps{Place: place})
}

func (e *Executor) carousel(ctx context.Context, a searchArgs) Result {
	limit := a.MaxResults
	if limit <= 0 {
		limit = defaultCarouselResults
	}
	found, err := e.places.SearchText(ctx, a.SearchText, &a.Location, limit)
	if err != nil {
		e.logger.WithError(err).WithField("query", a.SearchText).Warn("Carousel search failed")
		return failure(CarouselProps{Places: []places.Place{}}, err)
	}
	if len(found) == 0 {
		return empty(CarouselProps{Places: []places.Place{}})
	}
	return success(CarouselProps{Places: found})
}

type weatherArgs struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	City      string  `json:"city"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Units     string  `json:"units"`
}

func (e *Executor) weatherChart(a weatherArgs) Result {
	props := WeatherChartProps{Lat: a.Lat, Lon: a.Lon, City: a.City, Units: a.Units}
	if props.Units == "" {
		props.Units = "metric"
	}

	start, err := trip.ParseDate(a.StartDate)
	if err != nil {
		return failure(props, err)
	}
	end, err := trip.ParseDate(a.EndDate)
	if err != nil {
		return failure(props, err)
	}
	if end.Before(start) {
		return failure(props, trip.ErrDateOrder)
	}

	from, to := weather.ChartWindow(start, end, e.today())
	props.StartDate = from.Format("2006-01-02")
	props.EndDate = to.Format("2006-01-02")
	return success(props)
}

func (e *Executor) savedPlaces(ctx context.Context, clientID string) Result {
	list, err := e.saved.List(ctx, clientID)
	if err != nil {
		return failure(SavedPlacesProps{Places: []places.Place{}}, err)
	}
	if len(list) == 0 {
		return empty(SavedPlacesProps{Places: []places.Place{}})
	}
	return success(SavedPlacesProps{Places: list})
}

type stageArgs struct {
	NextStage int `json:"nextStage"`
}

func (e *Executor) stageProgress(ctx context.Context, clientID string, a stageArgs) Result {
	current, err := e.stages.Current(ctx, clientID)
	if err != nil {
		return failure(StageProgressProps{NextStage: a.NextStage}, err)
	}
	details, err := e.trips.Get(ctx, clientID)
	if err != nil {
		return failure(StageProgressProps{NextStage: current}, err)
	}

	decision, err := e.stages.Advance(ctx, clientID, a.NextStage, details)
	if err != nil {
		return failure(StageProgressProps{NextStage: current}, err)
	}

	props := StageProgressProps{
		NextStage:       a.NextStage,
		Reason:          "Stage requirements met",
		Criteria:        decision.MissingRequirements,
		UpgradeRequired: decision.UpgradeRequired,
	}
	if !decision.CanProgress {
		props.NextStage = current
		props.Reason = "Stage requirements not met"
	}
	return success(props)
}

type currencyArgs struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from"`
	To     string  `json:"to"`
}

func (e *Executor) convert(ctx context.Context, clientID string, a currencyArgs) Result {
	from, to := a.From, a.To
	if from == "" {
		from = "USD"
	}
	if to == "" {
		details, err := e.trips.Get(ctx, clientID)
		if err != nil {
			return failure(CurrencyConverterProps{}, err)
		}
		to = currency.ForDestination(details.Destination)
	}

	conv, err := e.currency.Convert(ctx, a.Amount, from, to)
	if err != nil {
		return failure(CurrencyConverterProps{}, err)
	}
	return success(CurrencyConverterProps{Conversion: *conv})
}
