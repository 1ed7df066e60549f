package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/events"
	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/session"
	"github.com/travelrizz/travelrizz-backend/internal/stage"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
	"github.com/travelrizz/travelrizz-backend/internal/tools"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

type fakeTrips struct{}

func (fakeTrips) Get(context.Context, string) (trip.Details, error) {
	return trip.Details{Destination: "Paris, France", StartDate: "01/06/2025", EndDate: "03/06/2025"}, nil
}

type fixedStage int

func (s fixedStage) Current(context.Context, string) (int, error) { return int(s), nil }

type noSaved struct{}

func (noSaved) List(context.Context, string) ([]places.Place, error) { return nil, nil }

// fakeOpenAI records requests and answers with canned bodies.
type fakeOpenAI struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	reply    func(w http.ResponseWriter, req openai.ChatCompletionRequest)
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req openai.ChatCompletionRequest
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	f.reply(w, req)
}

func (f *fakeOpenAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func jsonReply(content string, calls ...openai.ToolCall) func(http.ResponseWriter, openai.ChatCompletionRequest) {
	return func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID: "chatcmpl-1",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					Content:   content,
					ToolCalls: calls,
				},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}
}

func sseReply(chunks ...string) func(http.ResponseWriter, openai.ChatCompletionRequest) {
	return func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

type harness struct {
	svc      *Service
	metrics  *metrics.Store
	upstream *fakeOpenAI
}

func newHarness(t *testing.T, current int) *harness {
	t.Helper()
	fake := &fakeOpenAI{reply: jsonReply("Hello!")}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.OpenAI.APIKey = "test"
	cfg.OpenAI.BaseURL = srv.URL + "/v1"

	backend := storage.NewMemoryStore(time.Hour)
	locker := storage.NewLocker()
	logger := logging.Discard()
	sessions := session.NewStore(backend, locker, cfg.Session, events.Nop{}, audit.Nop{}, logger)
	metricsStore := metrics.NewStore(backend, locker, sessions, cfg.Limits, events.Nop{}, audit.Nop{}, logger)
	runner := tools.NewExecutor(nil, nil, fakeTrips{}, nil, nil, logger)

	svc := NewService(NewClient(cfg.OpenAI), cfg.OpenAI, fakeTrips{}, fixedStage(current), metricsStore, noSaved{}, runner, logger)
	return &harness{svc: svc, metrics: metricsStore, upstream: fake}
}

func userTurn(text string) Request {
	return Request{Messages: []Message{{Role: "user", Content: text}}}
}

func TestComplete_CountsUserMessageBeforeSending(t *testing.T) {
	h := newHarness(t, stage.PlaceBrowsing)
	ctx := context.Background()

	reply, err := h.svc.Complete(ctx, "client-a", userTurn("show me museums"))
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Content)
	assert.Equal(t, 1, reply.Metrics.TotalPrompts)
	assert.Equal(t, 1, reply.Metrics.StagePrompts[stage.PlaceBrowsing])

	require.Equal(t, 1, h.upstream.count())
	req := h.upstream.requests[0]
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, 2000, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 3)
	assert.Contains(t, req.Messages[1].Content, "Current Trip Details for Paris, France")
	assert.Contains(t, req.Messages[1].Content, "Planning stage: 3 (Place browsing)")
	assert.Len(t, req.Tools, len(tools.Kinds))
}

func TestComplete_AssistantMessageNotCounted(t *testing.T) {
	h := newHarness(t, stage.GatherParameters)
	reply, err := h.svc.Complete(context.Background(), "client-a", Request{Messages: []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, reply.Metrics.TotalPrompts)
}

func TestComplete_UpgradeAtLimit(t *testing.T) {
	h := newHarness(t, stage.PlaceBrowsing)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.svc.Complete(ctx, "client-a", userTurn(fmt.Sprintf("prompt %d", i)))
		require.NoError(t, err)
	}
	require.Equal(t, 5, h.upstream.count())

	reply, err := h.svc.Complete(ctx, "client-a", userTurn("one more"))
	require.NoError(t, err)
	assert.True(t, reply.UpgradeRequired)
	assert.Equal(t, stage.UpgradeMessage, reply.Content)
	assert.Equal(t, 5, h.upstream.count(), "model must not be called past the limit")
	assert.Equal(t, 5, reply.Metrics.StagePrompts[stage.PlaceBrowsing])

	_, err = h.metrics.MarkPaid(ctx, "client-a", "ref_1")
	require.NoError(t, err)
	reply, err = h.svc.Complete(ctx, "client-a", userTurn("after paying"))
	require.NoError(t, err)
	assert.False(t, reply.UpgradeRequired)
	assert.Equal(t, 6, h.upstream.count())
}

func TestComplete_ExecutesToolCalls(t *testing.T) {
	h := newHarness(t, stage.GatherParameters)
	h.upstream.reply = jsonReply("Let's pick a budget.", openai.ToolCall{
		ID:       "call_1",
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: "budgetSelector", Arguments: `{"currentBudget":"$$"}`},
	}, openai.ToolCall{
		ID:       "call_2",
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: "teleport", Arguments: `{}`},
	})

	reply, err := h.svc.Complete(context.Background(), "client-a", userTurn("change my budget"))
	require.NoError(t, err)
	require.Len(t, reply.ToolResults, 2)
	assert.Equal(t, tools.StatusSuccess, reply.ToolResults[0].Status)
	assert.Equal(t, tools.BudgetProps{CurrentBudget: trip.BudgetModerate}, reply.ToolResults[0].Props)
	assert.Equal(t, tools.StatusError, reply.ToolResults[1].Status)
}

func TestComplete_Errors(t *testing.T) {
	h := newHarness(t, stage.GatherParameters)
	ctx := context.Background()

	_, err := h.svc.Complete(ctx, "client-a", Request{})
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = h.svc.Complete(ctx, "client-a", Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	unconfigured := NewService(nil, config.OpenAIConfig{}, fakeTrips{}, fixedStage(1), h.metrics, noSaved{}, nil, logging.Discard())
	_, err = unconfigured.Complete(ctx, "client-a", userTurn("hi"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStream_TextThenToolsThenDone(t *testing.T) {
	h := newHarness(t, stage.GatherParameters)
	h.upstream.reply = sseReply(
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"Sure, "}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"pick dates."}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"datePicker","arguments":"{\"startDate\":"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"01/06/2025\"}"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	events, err := h.svc.Stream(context.Background(), "client-a", userTurn("change dates"))
	require.NoError(t, err)

	var types []StreamEventType
	var collected []StreamEvent
	for e := range events {
		types = append(types, e.Type)
		collected = append(collected, e)
	}
	assert.Equal(t, []StreamEventType{EventText, EventText, EventTool, EventDone}, types)

	tool := collected[2].Tool
	require.NotNil(t, tool)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.Equal(t, tools.DatePickerProps{Dates: tools.DateRange{StartDate: "01/06/2025"}}, tool.Props)
	assert.Equal(t, 1, collected[3].Metrics.TotalPrompts)
	assert.True(t, h.upstream.requests[0].Stream)
}

func TestStream_UpgradeWithoutModel(t *testing.T) {
	h := newHarness(t, stage.PlaceBrowsing)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := h.metrics.Update(ctx, "client-a", stage.PlaceBrowsing, true)
		require.NoError(t, err)
	}

	events, err := h.svc.Stream(ctx, "client-a", userTurn("more"))
	require.NoError(t, err)
	reply, err := Collect(events)
	require.NoError(t, err)
	assert.True(t, reply.UpgradeRequired)
	assert.True(t, strings.HasPrefix(reply.Content, "I'm sorry"))
	assert.Equal(t, 0, h.upstream.count())
}

func TestStream_CancelStopsDelivery(t *testing.T) {
	h := newHarness(t, stage.GatherParameters)
	release := make(chan struct{})
	h.upstream.reply = func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"c","choices":[{"index":0,"delta":{"content":"partial"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-release
	}
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.svc.Stream(ctx, "client-a", userTurn("tell me a long story"))
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, EventText, first.Type)
	cancel()

	for e := range events {
		assert.NotEqual(t, EventDone, e.Type)
	}
}

func TestQuickResponses(t *testing.T) {
	h := newHarness(t, stage.GatherParameters)
	h.upstream.reply = jsonReply("", openai.ToolCall{
		ID:       "call_q",
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: "quickResponse", Arguments: `{"responses":["Show me museums","What about food?"]}`},
	})

	got, err := h.svc.QuickResponses(context.Background(), "client-a", []Message{{Role: "assistant", Content: "Paris is lovely in June."}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Show me museums", "What about food?"}, got)

	req := h.upstream.requests[0]
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "quickResponse", req.Tools[0].Function.Name)

	m, err := h.metrics.Get(context.Background(), "client-a")
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalPrompts)
}
