package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/services"
)

type testServer struct {
	app   *fiber.App
	svc   *services.Services
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	rates := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USD", r.URL.Query().Get("base_currency"))
		_, _ = w.Write([]byte(`{"data":{"EUR":0.9,"JPY":150}}`))
	}))
	t.Cleanup(rates.Close)

	cfg := config.Default()
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Currency.BaseURL = rates.URL

	svc, err := services.New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	s := &testServer{app: NewApp(svc), svc: svc}

	resp := s.do(t, http.MethodPost, "/api/v1/clients", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var registered struct {
		ClientID string `json:"clientId"`
		Token    string `json:"token"`
	}
	decode(t, resp, &registered)
	require.NotEmpty(t, registered.ClientID)
	s.token = registered.Token
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func errorOf(t *testing.T, resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	decode(t, resp, &body)
	return body.Error
}

func parisTrip() map[string]interface{} {
	return map[string]interface{}{
		"destination": "Paris, France",
		"startDate":   "01/06/2025",
		"endDate":     "03/06/2025",
		"preferences": []string{"culture", "food"},
		"budget":      "$$",
		"language":    "en",
		"transport":   []string{"walking"},
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	resp := s.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestClientTokenRequired(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	resp := s.do(t, http.MethodGet, "/api/v1/trip", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Client token required", errorOf(t, resp))

	s.token = "garbage"
	resp = s.do(t, http.MethodGet, "/api/v1/trip", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterClientSetsCookie(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "client_token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stage", nil)
	req.AddCookie(cookie)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTripLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/api/v1/trip", parisTrip())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPatch, "/api/v1/trip", map[string]interface{}{"budget": "$$$$"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/trip", nil)
	var got map[string]interface{}
	decode(t, resp, &got)
	assert.Equal(t, "Paris, France", got["destination"])
	assert.Equal(t, "$$$$", got["budget"])

	resp = s.do(t, http.MethodPatch, "/api/v1/trip", map[string]interface{}{"budget": "cheap"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// The form submission started a session.
	resp = s.do(t, http.MethodGet, "/api/v1/session", nil)
	var sess struct {
		Status struct {
			IsValid bool `json:"isValid"`
		} `json:"status"`
	}
	decode(t, resp, &sess)
	assert.True(t, sess.Status.IsValid)

	resp = s.do(t, http.MethodDelete, "/api/v1/session", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/trip", nil)
	got = nil
	decode(t, resp, &got)
	assert.Equal(t, "", got["destination"])
}

func TestStageValidateAndAdvance(t *testing.T) {
	s := newTestServer(t)

	type decisionBody struct {
		Decision struct {
			CanProgress         bool     `json:"canProgress"`
			MissingRequirements []string `json:"missingRequirements"`
		} `json:"decision"`
	}

	resp := s.do(t, http.MethodPost, "/api/v1/stage/validate", map[string]interface{}{
		"currentStage": 1,
		"nextStage":    2,
		"details":      map[string]interface{}{"destination": "Paris"},
	})
	var rejected decisionBody
	decode(t, resp, &rejected)
	assert.False(t, rejected.Decision.CanProgress)
	assert.Contains(t, rejected.Decision.MissingRequirements, "start date")

	resp = s.do(t, http.MethodPut, "/api/v1/trip", parisTrip())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/v1/stage/validate", map[string]interface{}{
		"nextStage": 2,
		"advance":   true,
	})
	var admitted decisionBody
	decode(t, resp, &admitted)
	assert.True(t, admitted.Decision.CanProgress)

	resp = s.do(t, http.MethodGet, "/api/v1/stage", nil)
	var current struct {
		Stage int `json:"stage"`
	}
	decode(t, resp, &current)
	assert.Equal(t, 2, current.Stage)
}

func TestStageValidate_ExplicitZeroStage(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/stage/validate", map[string]interface{}{
		"currentStage": 0,
		"nextStage":    2,
		"details":      parisTrip(),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Decision struct {
			CanProgress         bool     `json:"canProgress"`
			MissingRequirements []string `json:"missingRequirements"`
		} `json:"decision"`
	}
	decode(t, resp, &body)
	assert.False(t, body.Decision.CanProgress)
	assert.Equal(t, []string{"invalid stage progression"}, body.Decision.MissingRequirements)

	// without currentStage the persisted stage (1) is used
	resp = s.do(t, http.MethodPost, "/api/v1/stage/validate", map[string]interface{}{
		"nextStage": 2,
		"details":   parisTrip(),
	})
	decode(t, resp, &body)
	assert.True(t, body.Decision.CanProgress)
}

func TestSavedPlaces(t *testing.T) {
	s := newTestServer(t)

	for _, id := range []string{"a", "b", "c"} {
		resp := s.do(t, http.MethodPost, "/api/v1/places", map[string]interface{}{
			"id":          id,
			"displayName": map[string]string{"text": id},
			"location":    map[string]float64{"latitude": 48.85, "longitude": 2.35},
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp := s.do(t, http.MethodPost, "/api/v1/places", map[string]interface{}{"id": "a"})
	var dup struct {
		Added bool `json:"added"`
	}
	decode(t, resp, &dup)
	assert.False(t, dup.Added)

	resp = s.do(t, http.MethodPost, "/api/v1/places/c/move", map[string]int{"dayIndex": 0, "orderIndex": 0})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/places?day=0", nil)
	var day struct {
		Places []struct {
			ID string `json:"id"`
		} `json:"places"`
	}
	decode(t, resp, &day)
	require.Len(t, day.Places, 1)
	assert.Equal(t, "c", day.Places[0].ID)

	resp = s.do(t, http.MethodDelete, "/api/v1/places/b", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodDelete, "/api/v1/places/b", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/metrics", nil)
	var m struct {
		SavedPlacesCount int `json:"savedPlacesCount"`
	}
	decode(t, resp, &m)
	assert.Equal(t, 2, m.SavedPlacesCount)
}

func TestItineraryRequiresDates(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/itinerary", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/itinerary/days/x/route", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMetricsLimits(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/metrics/limits?stage=3", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Stage  int `json:"stage"`
		Limits struct {
			WithinStageLimit bool `json:"withinStageLimit"`
		} `json:"limits"`
		MaxStagePrompts int `json:"maxStagePrompts"`
	}
	decode(t, resp, &body)
	assert.Equal(t, 3, body.Stage)
	assert.True(t, body.Limits.WithinStageLimit)
	assert.Equal(t, 5, body.MaxStagePrompts)

	resp = s.do(t, http.MethodGet, "/api/v1/metrics/limits?stage=9", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPaymentsVerifyRequiresParams(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/payments/verify?session_id=cs_1", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Session ID and Reference ID required", errorOf(t, resp))

	resp = s.do(t, http.MethodPost, "/api/v1/payments/reference", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var ref struct {
		ReferenceID string `json:"referenceId"`
	}
	decode(t, resp, &ref)
	assert.Regexp(t, `^ref_`, ref.ReferenceID)

	// Stripe is not configured in tests.
	resp = s.do(t, http.MethodGet, "/api/v1/payments/verify?session_id=cs_1&reference_id="+ref.ReferenceID, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestCurrencyConvert(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/currency/convert", map[string]interface{}{
		"amount":      100,
		"destination": "Tokyo, Japan",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var conv struct {
		To     string  `json:"to"`
		Result float64 `json:"result"`
	}
	decode(t, resp, &conv)
	assert.Equal(t, "JPY", conv.To)
	assert.InDelta(t, 15000, conv.Result, 0.001)

	resp = s.do(t, http.MethodPost, "/api/v1/currency/convert", map[string]interface{}{
		"amount": 1, "to": "XXX",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWeatherRequiresParams(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/weather/historical?lat=48.8", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/weather/historical?lat=95&lon=2&start_date=2024-01-01&end_date=2024-01-02", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestChatNotConfigured(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/chat", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/ws/events", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
