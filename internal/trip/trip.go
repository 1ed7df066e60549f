package trip

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/language"
)

// DateLayout is the wire format of trip dates (DD/MM/YYYY).
const DateLayout = "02/01/2006"

type Preference string

const (
	PreferenceCulture    Preference = "culture"
	PreferenceNature     Preference = "nature"
	PreferenceFood       Preference = "food"
	PreferenceRelaxation Preference = "relaxation"
	PreferenceAdventure  Preference = "adventure"
	PreferenceShopping   Preference = "shopping"
)

// Preferences lists every supported interest tag in display order.
var Preferences = []Preference{
	PreferenceCulture,
	PreferenceNature,
	PreferenceFood,
	PreferenceRelaxation,
	PreferenceAdventure,
	PreferenceShopping,
}

// Budget is one of four ordinal spending levels.
type Budget string

const (
	BudgetLow      Budget = "$"
	BudgetModerate Budget = "$$"
	BudgetHigh     Budget = "$$$"
	BudgetLuxury   Budget = "$$$$"
)

var Budgets = []Budget{BudgetLow, BudgetModerate, BudgetHigh, BudgetLuxury}

// SupportedLanguages are the locales the itinerary export can be written in.
var SupportedLanguages = []language.Tag{
	language.English,
	language.Chinese,
	language.Malay,
	language.Japanese,
	language.Korean,
	language.French,
	language.German,
	language.Spanish,
	language.Italian,
}

var (
	ErrInvalidPreference = errors.New("invalid preference")
	ErrInvalidBudget     = errors.New("invalid budget")
	ErrInvalidLanguage   = errors.New("unsupported language")
	ErrInvalidDate       = errors.New("invalid date")
	ErrDateOrder         = errors.New("end date is before start date")
)

// Details is the user's trip configuration.
type Details struct {
	Destination string       `json:"destination"`
	StartDate   string       `json:"startDate"`
	EndDate     string       `json:"endDate"`
	Preferences []Preference `json:"preferences"`
	Budget      Budget       `json:"budget"`
	Language    string       `json:"language"`
	Transport   []string     `json:"transport"`
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Destination *string      `json:"destination,omitempty"`
	StartDate   *string      `json:"startDate,omitempty"`
	EndDate     *string      `json:"endDate,omitempty"`
	Preferences []Preference `json:"preferences,omitempty"`
	Budget      *Budget      `json:"budget,omitempty"`
	Language    *string      `json:"language,omitempty"`
	Transport   []string     `json:"transport,omitempty"`
}

// Apply returns a copy of d with the patch applied.
func (d Details) Apply(p Patch) Details {
	out := d
	if p.Destination != nil {
		out.Destination = *p.Destination
	}
	if p.StartDate != nil {
		out.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		out.EndDate = *p.EndDate
	}
	if p.Preferences != nil {
		out.Preferences = lo.Uniq(p.Preferences)
	}
	if p.Budget != nil {
		out.Budget = *p.Budget
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.Transport != nil {
		out.Transport = p.Transport
	}
	return out
}

// Validate checks enumerated fields and date ordering. Empty fields are
// allowed; completeness is the stage validator's concern.
func (d Details) Validate() error {
	for _, p := range d.Preferences {
		if !lo.Contains(Preferences, p) {
			return fmt.Errorf("%w: %q", ErrInvalidPreference, p)
		}
	}
	if d.Budget != "" && !lo.Contains(Budgets, d.Budget) {
		return fmt.Errorf("%w: %q", ErrInvalidBudget, d.Budget)
	}
	if d.Language != "" {
		if _, err := NormalizeLanguage(d.Language); err != nil {
			return err
		}
	}

	var start, end time.Time
	var err error
	if d.StartDate != "" {
		if start, err = ParseDate(d.StartDate); err != nil {
			return err
		}
	}
	if d.EndDate != "" {
		if end, err = ParseDate(d.EndDate); err != nil {
			return err
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ErrDateOrder
	}
	return nil
}

// Days returns the inclusive number of trip days, or 0 if the dates are unusable.
func (d Details) Days() int {
	start, err := ParseDate(d.StartDate)
	if err != nil {
		return 0
	}
	end, err := ParseDate(d.EndDate)
	if err != nil || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// Country returns the last comma separated part of the destination.
func (d Details) Country() string {
	parts := strings.Split(d.Destination, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

// ParseDate parses a DD/MM/YYYY date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// FormatDate renders t as DD/MM/YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeLanguage maps a locale code to its supported base language code.
func NormalizeLanguage(code string) (string, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}
	base, _ := tag.Base()
	for _, supported := range SupportedLanguages {
		if b, _ := supported.Base(); b == base {
			return base.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
}

// LanguageName returns the English display name of a supported language code.
func LanguageName(code string) string {
	switch code {
	case "en":
		return "English"
	case "zh":
		return "Chinese"
	case "ms":
		return "Malay"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	case "it":
		return "Italian"
	}
	return code
}
