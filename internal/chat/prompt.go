package chat

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/travelrizz/travelrizz-backend/internal/stage"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

const systemPrompt = `You are a travel assistant.
IMPORTANT: Always respond in English regardless of the PDF export language setting.

IMPORTANT INSTRUCTIONS:
1. When users ask to change settings, acknowledge the request and use the matching tool:
   - budget changes: budgetSelector
   - date changes: datePicker
   - preference changes: preferenceSelector
   - language changes: languageSelector
   - transport options: transportSelector
2. When users ask about places, acknowledge and use a tool:
   - ONE place, by name or type ("show me one theatre", "show me The Little Mermaid statue"): placeCard
   - MULTIPLE places ("show me cafes", "find restaurants in the city"): carousel with searchText
   - the places they already saved: savedPlacesList
3. When users update any travel parameter, acknowledge the change in 1-2 short sentences and
   briefly mention how it affects their plans.
4. When users ask about weather, explain that historical data from the previous year is shown
   for the same period and use weatherChart with the trip dates.
5. When users ask about prices in another currency, use currencyConverter.
6. When the current stage's goals are met, use stageProgress with the next stage number.
7. Keep responses concise and focused.
8. Always respond in English.`

const quickResponsePrompt = `Suggest up to three short replies the user might send next in this travel planning
conversation. Write them from the user's point of view, each under ten words, and call quickResponse.`

// tripContext renders the per-request context block.
func tripContext(d trip.Details, currentStage, savedPlaces int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Trip Details for %s:\n", orUnset(d.Destination))
	fmt.Fprintf(&b, "- Dates: %s to %s\n", orUnset(d.StartDate), orUnset(d.EndDate))
	fmt.Fprintf(&b, "- Budget: %s\n", orUnset(string(d.Budget)))
	prefs := lo.Map(d.Preferences, func(p trip.Preference, _ int) string { return string(p) })
	fmt.Fprintf(&b, "- Preferences: %s\n", orUnset(strings.Join(prefs, ", ")))
	fmt.Fprintf(&b, "- PDF Export Language: %s\n", orUnset(trip.LanguageName(d.Language)))
	if len(d.Transport) > 0 {
		fmt.Fprintf(&b, "- Transport: %s\n", strings.Join(d.Transport, ", "))
	}
	fmt.Fprintf(&b, "- Planning stage: %d (%s)\n", currentStage, stage.Name(currentStage))
	fmt.Fprintf(&b, "- Saved places: %d", savedPlaces)
	return b.String()
}

func orUnset(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not set"
	}
	return s
}
