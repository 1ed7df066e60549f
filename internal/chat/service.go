package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/places"
	"github.com/travelrizz/travelrizz-backend/internal/stage"
	"github.com/travelrizz/travelrizz-backend/internal/tools"
	"github.com/travelrizz/travelrizz-backend/internal/trip"
)

var (
	ErrNotConfigured  = errors.New("chat model is not configured")
	ErrNoMessages     = errors.New("messages are required")
	ErrInvalidMessage = errors.New("invalid message role")
)

// Message is one turn of the conversation as sent by the client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat turn.
type Request struct {
	Messages       []Message     `json:"messages"`
	CurrentDetails *trip.Details `json:"currentDetails,omitempty"`
}

// Reply is the assistant's answer to a chat turn.
type Reply struct {
	Content         string           `json:"content"`
	ToolResults     []tools.Result   `json:"toolResults"`
	UpgradeRequired bool             `json:"upgradeRequired,omitempty"`
	Metrics         *metrics.Metrics `json:"metrics,omitempty"`
}

type Trips interface {
	Get(ctx context.Context, clientID string) (trip.Details, error)
}

type Stages interface {
	Current(ctx context.Context, clientID string) (int, error)
}

// Metrics counts prompts against the free tier.
type Metrics interface {
	Get(ctx context.Context, clientID string) (*metrics.Metrics, error)
	Update(ctx context.Context, clientID string, stage int, increment bool) (*metrics.Metrics, error)
	LimitsOf(m *metrics.Metrics, stage int) metrics.Limits
}

type SavedPlaces interface {
	List(ctx context.Context, clientID string) ([]places.Place, error)
}

// ToolRunner executes tool calls requested by the model.
type ToolRunner interface {
	Execute(ctx context.Context, clientID string, call tools.Call) tools.Result
}

// Service runs chat turns against the OpenAI chat completions API.
type Service struct {
	client  *openai.Client
	cfg     config.OpenAIConfig
	trips   Trips
	stages  Stages
	metrics Metrics
	saved   SavedPlaces
	tools   ToolRunner
	logger  *logrus.Logger
}

// NewClient creates an OpenAI client, or nil when no API key is configured.
func NewClient(cfg config.OpenAIConfig) *openai.Client {
	if cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func NewService(client *openai.Client, cfg config.OpenAIConfig, trips Trips, stages Stages, metricsStore Metrics, saved SavedPlaces, runner ToolRunner, logger *logrus.Logger) *Service {
	return &Service{
		client:  client,
		cfg:     cfg,
		trips:   trips,
		stages:  stages,
		metrics: metricsStore,
		saved:   saved,
		tools:   runner,
		logger:  logger,
	}
}

// turn is a validated chat request ready to send, or an early reply.
type turn struct {
	request openai.ChatCompletionRequest
	stage   int
	early   *Reply
	metrics *metrics.Metrics
}

// prepare gates the turn on the prompt limits, counts a user-authored
// message, and builds the completion request. The counter is updated
// before the request is sent.
func (s *Service) prepare(ctx context.Context, clientID string, req Request) (*turn, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	current, err := s.stages.Current(ctx, clientID)
	if err != nil {
		return nil, err
	}

	m, err := s.metrics.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !m.IsPaid && !s.metrics.LimitsOf(m, current).Within() {
		s.logger.WithFields(logrus.Fields{
			"client_id": clientID,
			"stage":     current,
			"total":     m.TotalPrompts,
		}).Info("Prompt limit reached, asking for upgrade")
		return &turn{stage: current, metrics: m, early: &Reply{
			Content:         stage.UpgradeMessage,
			ToolResults:     []tools.Result{},
			UpgradeRequired: true,
			Metrics:         m,
		}}, nil
	}

	if req.Messages[len(req.Messages)-1].Role == openai.ChatMessageRoleUser {
		if m, err = s.metrics.Update(ctx, clientID, current, true); err != nil {
			return nil, err
		}
	}

	details := trip.Details{}
	if req.CurrentDetails != nil {
		details = *req.CurrentDetails
	} else if details, err = s.trips.Get(ctx, clientID); err != nil {
		return nil, err
	}

	saved, err := s.saved.List(ctx, clientID)
	if err != nil {
		return nil, err
	}

	system := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleSystem, Content: tripContext(details, current, len(saved))},
	}

	return &turn{
		stage:   current,
		metrics: m,
		request: openai.ChatCompletionRequest{
			Model:       s.cfg.Model,
			Messages:    append(system, messages...),
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
			Tools:       tools.Definitions(),
		},
	}, nil
}

// Complete runs one non-streaming chat turn.
func (s *Service) Complete(ctx context.Context, clientID string, req Request) (*Reply, error) {
	t, err := s.prepare(ctx, clientID, req)
	if err != nil {
		return nil, err
	}
	if t.early != nil {
		return t.early, nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, t.request)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &Reply{ToolResults: []tools.Result{}, Metrics: t.metrics}, nil
	}

	msg := resp.Choices[0].Message
	s.logger.WithFields(logrus.Fields{
		"client_id":  clientID,
		"tool_calls": len(msg.ToolCalls),
		"tokens":     resp.Usage.TotalTokens,
	}).Debug("Chat completion finished")

	return &Reply{
		Content:     msg.Content,
		ToolResults: s.runTools(ctx, clientID, msg.ToolCalls),
		Metrics:     t.metrics,
	}, nil
}

// QuickResponses asks the model for suggested replies to the conversation.
// It does not count against the prompt limits.
func (s *Service) QuickResponses(ctx context.Context, clientID string, history []Message) ([]string, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	messages, err := convertMessages(history)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Messages:    append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: quickResponsePrompt}}, messages...),
		MaxTokens:   200,
		Temperature: s.cfg.Temperature,
		Tools:       tools.Definitions(tools.KindQuickResponse),
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: string(tools.KindQuickResponse)},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("quick response completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return []string{}, nil
	}

	for _, r := range s.runTools(ctx, clientID, resp.Choices[0].Message.ToolCalls) {
		if props, ok := r.Props.(tools.QuickResponseProps); ok && r.Status == tools.StatusSuccess {
			return props.Responses, nil
		}
	}
	return []string{}, nil
}

func (s *Service) runTools(ctx context.Context, clientID string, calls []openai.ToolCall) []tools.Result {
	results := make([]tools.Result, 0, len(calls))
	for _, c := range calls {
		results = append(results, s.tools.Execute(ctx, clientID, tools.Call{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		}))
	}
	return results
}

func convertMessages(in []Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
		case "data", openai.ChatMessageRoleSystem:
			// client-side annotations are passed as system context
			m.Role = openai.ChatMessageRoleSystem
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidMessage, m.Role)
		}
		if m.Content == "" {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
