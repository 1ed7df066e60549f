package tools

import (
	"github.com/travelrizz/travelrizz-backend/internal/currency"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// Status of a tool execution as seen by the UI.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusEmpty   Status = "empty"
)

// Result is what the client renders for one tool call.
type Result struct {
	ToolCallID string `json:"toolCallId,omitempty"`
	Type       Kind   `json:"type"`
	Status     Status `json:"status"`
	Props      Props  `json:"props"`
	Error      string `json:"error,omitempty"`
}

// Props is implemented by the typed payload of each kind.
type Props interface {
	kind() Kind
}

type BudgetProps struct {
	CurrentBudget trip.Budget `json:"currentBudget,omitempty"`
}

type PreferenceProps struct {
	CurrentPreferences []trip.Preference `json:"currentPreferences,omitempty"`
}

type DateRange struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type DatePickerProps struct {
	Dates DateRange `json:"dates"`
}

type LanguageProps struct {
	CurrentLanguage string `json:"currentLanguage,omitempty"`
}

type TransportProps struct {
	SelectedMethod string `json:"selectedMethod,omitempty"`
}

type PlaceCardProps struct {
	Place       *places.Place `json:"place"`
	ShowActions bool          `json:"showActions"`
}

type CarouselProps struct {
	Places []places.Place `json:"places"`
}

type DetailsContent struct {
	Destination string     `json:"destination"`
	Dates       *DateRange `json:"dates,omitempty"`
	Preferences []string   `json:"preferences,omitempty"`
	Budget      string     `json:"budget,omitempty"`
	Language    string     `json:"language,omitempty"`
	Transport   []string   `json:"transport,omitempty"`
	Dining      []string   `json:"dining,omitempty"`
}

type DetailsCardProps struct {
	Content DetailsContent `json:"content"`
}

// WeatherChartProps carries the extended chart window as ISO dates.
type WeatherChartProps struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	City      string  `json:"city"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Units     string  `json:"units"`
}

type SavedPlacesProps struct {
	Places []places.Place `json:"places"`
}

type StageProgressProps struct {
	NextStage       int      `json:"nextStage"`
	Reason          string   `json:"reason"`
	Criteria        []string `json:"criteria"`
	UpgradeRequired bool     `json:"upgradeRequired,omitempty"`
}

type QuickResponseProps struct {
	Responses []string `json:"responses"`
}

type CurrencyConverterProps struct {
	currency.Conversion
}

// ErrorProps is attached to results of calls that could not be decoded.
type ErrorProps struct{ k Kind }

func (BudgetProps) kind() Kind            { return KindBudgetSelector }
func (PreferenceProps) kind() Kind        { return KindPreferenceSelector }
func (DatePickerProps) kind() Kind        { return KindDatePicker }
func (LanguageProps) kind() Kind          { return KindLanguageSelector }
func (TransportProps) kind() Kind         { return KindTransportSelector }
func (PlaceCardProps) kind() Kind         { return KindPlaceCard }
func (CarouselProps) kind() Kind          { return KindCarousel }
func (DetailsCardProps) kind() Kind       { return KindDetailsCard }
func (WeatherChartProps) kind() Kind      { return KindWeatherChart }
func (SavedPlacesProps) kind() Kind       { return KindSavedPlacesList }
func (StageProgressProps) kind() Kind     { return KindStageProgress }
func (QuickResponseProps) kind() Kind     { return KindQuickResponse }
func (CurrencyConverterProps) kind() Kind { return KindCurrencyConverter }
func (p ErrorProps) kind() Kind           { return p.k }

func success(props Props) Result {
	return Result{Type: props.kind(), Status: StatusSuccess, Props: props}
}

func empty(props Props) Result {
	return Result{Type: props.kind(), Status: StatusEmpty, Props: props}
}

func failure(props Props, err error) Result {
	return Result{Type: props.kind(), Status: StatusError, Props: props, Error: err.Error()}
}
