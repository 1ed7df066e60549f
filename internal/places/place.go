package places

import (
	"math/rand"
	"strings"

	"github.com/samber/lo"

	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

// Unplaced marks a saved place that is not assigned to any day.
const Unplaced = -1

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type Photo struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx,omitempty"`
	HeightPx int    `json:"heightPx,omitempty"`
}

// Place is a point of interest, optionally placed on a day of the itinerary.
type Place struct {
	ID                     string         `json:"id"`
	DisplayName            LocalizedText  `json:"displayName"`
	FormattedAddress       string         `json:"formattedAddress,omitempty"`
	Location               *LatLng        `json:"location,omitempty"`
	PrimaryType            string         `json:"primaryType"`
	PrimaryTypeDisplayName *LocalizedText `json:"primaryTypeDisplayName,omitempty"`
	Photos                 []Photo        `json:"photos,omitempty"`
	DayIndex               int            `json:"dayIndex"`
	OrderIndex             int            `json:"orderIndex"`
}

// Placed reports whether the place is assigned to a day.
func (p Place) Placed() bool {
	return p.DayIndex >= 0
}

// TypeDisplayName returns the localized category, or a title-cased primary type.
func (p Place) TypeDisplayName() string {
	if p.PrimaryTypeDisplayName != nil && p.PrimaryTypeDisplayName.Text != "" {
		return p.PrimaryTypeDisplayName.Text
	}
	if p.PrimaryType == "" {
		return "Place"
	}
	return FormatPrimaryType(p.PrimaryType)
}

// FormatPrimaryType turns "art_gallery" into "Art Gallery".
func FormatPrimaryType(t string) string {
	words := strings.Split(t, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// preferenceTypes maps each interest tag to the place types searched for it.
var preferenceTypes = map[trip.Preference][]string{
	trip.PreferenceCulture: {
		"museum", "cultural_center", "cultural_landmark", "historical_landmark",
		"monument", "art_gallery", "historical_place",
	},
	trip.PreferenceNature: {
		"national_park", "state_park", "botanical_garden", "wildlife_park",
		"garden", "hiking_area", "wildlife_refuge",
	},
	trip.PreferenceFood: {
		"restaurant", "fine_dining_restaurant", "cafe", "food_court",
		"bakery", "dessert_shop", "bar_and_grill",
	},
	trip.PreferenceRelaxation: {
		"spa", "wellness_center", "shopping_mall", "beach",
		"garden", "plaza", "yoga_studio",
	},
	trip.PreferenceAdventure: {
		"adventure_sports_center", "amusement_park", "hiking_area", "sports_complex",
		"water_park", "off_roading_area", "sports_activity_location",
	},
	// arts and museums
	trip.PreferenceShopping: {
		"art_gallery", "art_studio", "performing_arts_theater", "auditorium",
		"concert_hall", "museum", "opera_house",
	},
}

// DefaultPlaceType is used when no preference yields a type.
const DefaultPlaceType = "tourist_attraction"

// TypesFor returns the candidate place types of a preference.
func TypesFor(p trip.Preference) []string {
	return append([]string(nil), preferenceTypes[p]...)
}

// TypesForPreferences picks two or three random place types per preference,
// never repeating a type across preferences.
func TypesForPreferences(prefs []trip.Preference, rnd *rand.Rand) []string {
	used := map[string]bool{}
	var result []string

	for _, pref := range prefs {
		available := lo.Filter(preferenceTypes[pref], func(t string, _ int) bool {
			return !used[t]
		})
		rnd.Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})

		n := lo.Min([]int{2 + rnd.Intn(2), len(available)})
		for _, t := range available[:n] {
			used[t] = true
			result = append(result, t)
		}
	}

	if len(result) == 0 {
		return []string{DefaultPlaceType}
	}
	return result
}
