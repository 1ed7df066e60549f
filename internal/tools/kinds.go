package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"
)

// Kind names a UI component the assistant can ask the client to render.
type Kind string

const (
	KindBudgetSelector     Kind = "budgetSelector"
	KindPreferenceSelector Kind = "preferenceSelector"
	KindDatePicker         Kind = "datePicker"
	KindLanguageSelector   Kind = "languageSelector"
	KindTransportSelector  Kind = "transportSelector"
	KindPlaceCard          Kind = "placeCard"
	KindCarousel           Kind = "carousel"
	KindDetailsCard        Kind = "detailsCard"
	KindWeatherChart       Kind = "weatherChart"
	KindSavedPlacesList    Kind = "savedPlacesList"
	KindStageProgress      Kind = "stageProgress"
	KindQuickResponse      Kind = "quickResponse"
	KindCurrencyConverter  Kind = "currencyConverter"
)

// ErrUnknownTool is returned for tool names outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

type definition struct {
	description string
	schema      string
	compiled    *gojsonschema.Schema
}

const locationSchema = `{
	"type": "object",
	"properties": {
		"latitude": {"type": "number", "minimum": -90, "maximum": 90},
		"longitude": {"type": "number", "minimum": -180, "maximum": 180}
	},
	"required": ["latitude", "longitude"]
}`

var registry = map[Kind]*definition{
	KindBudgetSelector: {
		description: "Display budget level options for the trip. Use this when discussing trip costs or when the user wants to set their budget preference.",
		schema: `{
			"type": "object",
			"properties": {
				"currentBudget": {"type": "string", "enum": ["$", "$$", "$$$", "$$$$"]}
			}
		}`,
	},
	KindPreferenceSelector: {
		description: "Display options for selecting travel preferences and interests.",
		schema: `{
			"type": "object",
			"properties": {
				"currentPreferences": {
					"type": "array",
					"items": {"type": "string", "enum": ["culture", "nature", "food", "relaxation", "adventure", "shopping"]}
				}
			}
		}`,
	},
	KindDatePicker: {
		description: "Display a date picker for selecting travel dates.",
		schema: `{
			"type": "object",
			"properties": {
				"startDate": {"type": "string", "description": "DD/MM/YYYY"},
				"endDate": {"type": "string", "description": "DD/MM/YYYY"}
			}
		}`,
	},
	KindLanguageSelector: {
		description: "Display language selection options.",
		schema: `{
			"type": "object",
			"properties": {
				"currentLanguage": {"type": "string"}
			}
		}`,
	},
	KindTransportSelector: {
		description: "Display transport method selection options. Use this when discussing transportation options for the trip, such as flights, trains, or car rentals.",
		schema: `{
			"type": "object",
			"properties": {
				"selectedMethod": {"type": "string"}
			}
		}`,
	},
	KindPlaceCard: {
		description: `Display information about one specific place. Use this whenever the user explicitly asks for ONE place, whether by name or type (e.g., "show me one theatre", "show me The Little Mermaid statue").`,
		schema: `{
			"type": "object",
			"properties": {
				"searchText": {"type": "string", "minLength": 1, "description": "The name or description of the place to search for"},
				"location": ` + locationSchema + `
			},
			"required": ["searchText", "location"]
		}`,
	},
	KindCarousel: {
		description: `Display multiple places in a carousel. Use this when the user wants to search for multiple places (e.g., "show me cafes", "show me museums near me", "find restaurants").`,
		schema: `{
			"type": "object",
			"properties": {
				"searchText": {"type": "string", "minLength": 1, "description": "The search query for places (e.g., \"cafes\", \"museums\")"},
				"location": ` + locationSchema + `,
				"maxResults": {"type": "integer", "minimum": 1, "maximum": 20}
			},
			"required": ["searchText", "location"]
		}`,
	},
	KindDetailsCard: {
		description: "Display travel details summary. Use this when the user wants to view a summary of their trip details, including destination, dates, preferences, budget, and more.",
		schema: `{
			"type": "object",
			"properties": {
				"content": {
					"type": "object",
					"properties": {
						"destination": {"type": "string"},
						"dates": {
							"type": "object",
							"properties": {
								"startDate": {"type": "string"},
								"endDate": {"type": "string"}
							},
							"required": ["startDate", "endDate"]
						},
						"preferences": {"type": "array", "items": {"type": "string"}},
						"budget": {"type": "string"},
						"language": {"type": "string"},
						"transport": {"type": "array", "items": {"type": "string"}},
						"dining": {"type": "array", "items": {"type": "string"}}
					},
					"required": ["destination"]
				}
			},
			"required": ["content"]
		}`,
	},
	KindWeatherChart: {
		description: "Display historical weather data including temperature and precipitation for a location.",
		schema: `{
			"type": "object",
			"properties": {
				"lat": {"type": "number", "minimum": -90, "maximum": 90, "description": "Latitude of the location"},
				"lon": {"type": "number", "minimum": -180, "maximum": 180, "description": "Longitude of the location"},
				"city": {"type": "string", "description": "City name for display"},
				"startDate": {"type": "string", "description": "Trip start date in DD/MM/YYYY format"},
				"endDate": {"type": "string", "description": "Trip end date in DD/MM/YYYY format"},
				"units": {"type": "string", "enum": ["us", "uk", "metric"]}
			},
			"required": ["lat", "lon", "city", "startDate", "endDate"]
		}`,
	},
	KindSavedPlacesList: {
		description: "Display the places the user has saved for this trip.",
		schema:      `{"type": "object", "properties": {}}`,
	},
	KindStageProgress: {
		description: "Move the conversation to the next planning stage once its requirements are met.",
		schema: `{
			"type": "object",
			"properties": {
				"nextStage": {"type": "integer", "minimum": 1, "maximum": 5}
			},
			"required": ["nextStage"]
		}`,
	},
	KindQuickResponse: {
		description: "Suggest up to three short replies the user could send next, written from the user's point of view.",
		schema: `{
			"type": "object",
			"properties": {
				"responses": {
					"type": "array",
					"items": {"type": "string", "minLength": 1, "maxLength": 80},
					"minItems": 1,
					"maxItems": 3
				}
			},
			"required": ["responses"]
		}`,
	},
	KindCurrencyConverter: {
		description: "Convert an amount between currencies. The target defaults to the destination's currency.",
		schema: `{
			"type": "object",
			"properties": {
				"amount": {"type": "number", "minimum": 0},
				"from": {"type": "string", "pattern": "^[A-Za-z]{3}$"},
				"to": {"type": "string", "pattern": "^[A-Za-z]{3}$"}
			},
			"required": ["amount"]
		}`,
	},
}

// Kinds lists every registered tool in a stable order.
var Kinds = []Kind{
	KindBudgetSelector,
	KindPreferenceSelector,
	KindDatePicker,
	KindLanguageSelector,
	KindTransportSelector,
	KindPlaceCard,
	KindCarousel,
	KindDetailsCard,
	KindWeatherChart,
	KindSavedPlacesList,
	KindStageProgress,
	KindQuickResponse,
	KindCurrencyConverter,
}

func init() {
	for kind, def := range registry {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def.schema))
		if err != nil {
			panic(fmt.Sprintf("tools: invalid schema for %s: %v", kind, err))
		}
		def.compiled = compiled
	}
}

// ParseKind maps a tool name to its Kind.
func ParseKind(name string) (Kind, error) {
	kind := Kind(name)
	if _, ok := registry[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return kind, nil
}

// Validate checks raw JSON arguments against the tool's schema.
func Validate(kind Kind, args string) error {
	def, ok := registry[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, kind)
	}
	if args == "" {
		args = "{}"
	}
	result, err := def.compiled.Validate(gojsonschema.NewStringLoader(args))
	if err != nil {
		return fmt.Errorf("invalid %s arguments: %w", kind, err)
	}
	if !result.Valid() {
		msgs := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string {
			return e.String()
		})
		return fmt.Errorf("invalid %s arguments: %s", kind, strings.Join(msgs, "; "))
	}
	return nil
}

// Definition returns the OpenAI tool declaration of a kind.
func Definition(kind Kind) openai.Tool {
	def := registry[kind]
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        string(kind),
			Description: def.description,
			Parameters:  json.RawMessage(def.schema),
		},
	}
}

// Definitions returns the declarations of the given kinds, or of every kind.
func Definitions(kinds ...Kind) []openai.Tool {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	out := make([]openai.Tool, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, Definition(k))
	}
	return out
}
