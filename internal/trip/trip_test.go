package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetails_Validate(t *testing.T) {
	tests := []struct {
		name    string
		details Details
		wantErr error
	}{
		{
			name: "complete",
			details: Details{
				Destination: "Paris, France",
				StartDate:   "01/06/2025",
				EndDate:     "05/06/2025",
				Preferences: []Preference{PreferenceFood},
				Budget:      BudgetModerate,
				Language:    "en",
			},
		},
		{name: "empty is allowed", details: Details{}},
		{name: "unknown preference", details: Details{Preferences: []Preference{"skiing"}}, wantErr: ErrInvalidPreference},
		{name: "unknown budget", details: Details{Budget: "$$$$$"}, wantErr: ErrInvalidBudget},
		{name: "unknown language", details: Details{Language: "xx"}, wantErr: ErrInvalidLanguage},
		{name: "bad date", details: Details{StartDate: "2025-06-01"}, wantErr: ErrInvalidDate},
		{name: "reversed dates", details: Details{StartDate: "05/06/2025", EndDate: "01/06/2025"}, wantErr: ErrDateOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.details.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDetails_Days(t *testing.T) {
	d := Details{StartDate: "30/05/2025", EndDate: "02/06/2025"}
	assert.Equal(t, 4, d.Days())

	d.EndDate = "30/05/2025"
	assert.Equal(t, 1, d.Days())

	d.EndDate = ""
	assert.Equal(t, 0, d.Days())
}

func TestDetails_Apply(t *testing.T) {
	d := Details{Destination: "Tokyo, Japan", Budget: BudgetLow}
	budget := BudgetLuxury

	out := d.Apply(Patch{Budget: &budget, Preferences: []Preference{PreferenceFood, PreferenceFood, PreferenceNature}})

	assert.Equal(t, "Tokyo, Japan", out.Destination)
	assert.Equal(t, BudgetLuxury, out.Budget)
	assert.Equal(t, []Preference{PreferenceFood, PreferenceNature}, out.Preferences)
	assert.Equal(t, BudgetLow, d.Budget)
}

func TestDetails_Country(t *testing.T) {
	assert.Equal(t, "Japan", Details{Destination: "Tokyo, Japan"}.Country())
	assert.Equal(t, "Singapore", Details{Destination: "Singapore"}.Country())
}

func TestNormalizeLanguage(t *testing.T) {
	code, err := NormalizeLanguage("en")
	require.NoError(t, err)
	assert.Equal(t, "en", code)

	code, err = NormalizeLanguage("fr-CA")
	require.NoError(t, err)
	assert.Equal(t, "fr", code)

	_, err = NormalizeLanguage("not a tag")
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}
