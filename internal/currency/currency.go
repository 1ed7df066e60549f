package currency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/travelrizz/travelrizz-backend/internal/upstream"
)

// RatesTTL is how long a base currency's rates are reused.
const RatesTTL = 24 * time.Hour

// DefaultCurrency is used when a destination's currency is unknown.
const DefaultCurrency = "USD"

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrNoRate          = errors.New("no exchange rate")
)

var countryCurrencies = map[string]string{
	"Singapore":      "SGD",
	"Malaysia":       "MYR",
	"United States":  "USD",
	"Japan":          "JPY",
	"China":          "CNY",
	"United Kingdom": "GBP",
	"European Union": "EUR",
	"Australia":      "AUD",
	"Canada":         "CAD",
	"South Korea":    "KRW",
}

type symbolInfo struct {
	symbol string
	before bool
}

var symbols = map[string]symbolInfo{
	"USD": {"$", true},
	"SGD": {"S$", true},
	"MYR": {"RM", true},
	"JPY": {"¥", true},
	"CNY": {"¥", true},
	"GBP": {"£", true},
	"EUR": {"€", false},
	"AUD": {"A$", true},
	"CAD": {"C$", true},
	"KRW": {"₩", true},
}

// ForDestination infers the currency from the country part of a
// destination such as "Tokyo, Japan".
func ForDestination(destination string) string {
	parts := strings.Split(destination, ",")
	country := strings.TrimSpace(parts[len(parts)-1])
	if code, ok := countryCurrencies[country]; ok {
		return code
	}
	return DefaultCurrency
}

// Normalize validates an ISO 4217 code and returns it upper-cased.
func Normalize(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return unit.String(), nil
}

var printer = message.NewPrinter(language.English)

// Format renders amount with the currency's symbol on its customary side
// and its standard number of decimals.
func Format(amount float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, amount)
	}
	scale, _ := currency.Standard.Rounding(unit)
	number := printer.Sprintf(fmt.Sprintf("%%.%df", scale), amount)

	info, ok := symbols[unit.String()]
	if !ok {
		return unit.String() + " " + number
	}
	if info.before {
		return info.symbol + number
	}
	return number + " " + info.symbol
}

// Conversion is the result of converting an amount.
type Conversion struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Result    float64 `json:"result"`
	Formatted string  `json:"formatted"`
}

type ratesResponse struct {
	Data map[string]float64 `json:"data"`
}

// Service fetches exchange rates from FreeCurrencyAPI.
type Service struct {
	client  *upstream.Client
	baseURL string
	apiKey  string
	cache   *gocache.Cache
	logger  *logrus.Logger
}

// NewService creates a currency service
func NewService(client *upstream.Client, baseURL, apiKey string, logger *logrus.Logger) *Service {
	return &Service{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		cache:   gocache.New(RatesTTL, time.Hour),
		logger:  logger,
	}
}

// Rates returns the exchange rates of base against every other currency.
func (s *Service) Rates(ctx context.Context, base string) (map[string]float64, error) {
	base, err := Normalize(base)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(base); ok {
		return cached.(map[string]float64), nil
	}

	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("base_currency", base)

	var resp ratesResponse
	if err := s.client.Do(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: invalid response format")
	}

	s.cache.SetDefault(base, resp.Data)
	s.logger.WithFields(logrus.Fields{
		"base":  base,
		"count": len(resp.Data),
	}).Debug("Exchange rates refreshed")
	return resp.Data, nil
}

// Convert converts amount from one currency to another.
func (s *Service) Convert(ctx context.Context, amount float64, from, to string) (*Conversion, error) {
	from, err := Normalize(from)
	if err != nil {
		return nil, err
	}
	to, err = Normalize(to)
	if err != nil {
		return nil, err
	}

	rate := 1.0
	if from != to {
		rates, err := s.Rates(ctx, from)
		if err != nil {
			return nil, err
		}
		var ok bool
		if rate, ok = rates[to]; !ok {
			return nil, fmt.Errorf("%w: %s to %s", ErrNoRate, from, to)
		}
	}

	result := amount * rate
	return &Conversion{
		From:      from,
		To:        to,
		Amount:    amount,
		Rate:      rate,
		Result:    result,
		Formatted: Format(result, to),
	}, nil
}
