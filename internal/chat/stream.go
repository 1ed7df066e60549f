package chat

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/metrics"
	"github.com/travelrizz/travelrizz-backend/internal/tools"
)

// StreamEventType tags a streamed chat event.
type StreamEventType string

const (
	EventText    StreamEventType = "text"
	EventTool    StreamEventType = "tool"
	EventUpgrade StreamEventType = "upgrade"
	EventError   StreamEventType = "error"
	EventDone    StreamEventType = "done"
)

// StreamEvent is one frame of a streamed chat turn.
type StreamEvent struct {
	Type    StreamEventType  `json:"type"`
	Content string           `json:"content,omitempty"`
	Tool    *tools.Result    `json:"tool,omitempty"`
	Metrics *metrics.Metrics `json:"metrics,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// toolCallBuffer accumulates a tool call streamed in fragments.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// Stream runs a chat turn and streams text deltas, then tool results, then a
// done event. Cancelling ctx aborts the upstream stream; the channel is
// closed in every case.
func (s *Service) Stream(ctx context.Context, clientID string, req Request) (<-chan StreamEvent, error) {
	t, err := s.prepare(ctx, clientID, req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)

	if t.early != nil {
		events <- StreamEvent{Type: EventUpgrade, Content: t.early.Content, Metrics: t.early.Metrics}
		events <- StreamEvent{Type: EventDone}
		close(events)
		return events, nil
	}

	t.request.Stream = true
	stream, err := s.client.CreateChatCompletionStream(ctx, t.request)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(events)
		defer stream.Close()

		send := func(e StreamEvent) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		log := s.logger.WithField("client_id", clientID)
		calls := map[int]*toolCallBuffer{}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					log.Debug("Chat stream cancelled")
					return
				}
				log.WithError(err).Error("Chat stream failed")
				send(StreamEvent{Type: EventError, Error: err.Error()})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if !send(StreamEvent{Type: EventText, Content: delta.Content}) {
					return
				}
			}
			for i, tc := range delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				buf, ok := calls[idx]
				if !ok {
					buf = &toolCallBuffer{}
					calls[idx] = buf
				}
				if tc.ID != "" {
					buf.id = tc.ID
				}
				if tc.Function.Name != "" {
					buf.name = tc.Function.Name
				}
				buf.args.WriteString(tc.Function.Arguments)
			}
		}

		for _, call := range orderedCalls(calls) {
			result := s.tools.Execute(ctx, clientID, call)
			if !send(StreamEvent{Type: EventTool, Tool: &result}) {
				return
			}
		}

		log.WithFields(logrus.Fields{"tool_calls": len(calls)}).Debug("Chat stream finished")
		send(StreamEvent{Type: EventDone, Metrics: t.metrics})
	}()

	return events, nil
}

func orderedCalls(calls map[int]*toolCallBuffer) []tools.Call {
	keys := make([]int, 0, len(calls))
	for k := range calls {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]tools.Call, 0, len(keys))
	for _, k := range keys {
		buf := calls[k]
		out = append(out, tools.Call{ID: buf.id, Name: buf.name, Arguments: buf.args.String()})
	}
	return out
}

// Collect drains a stream into a reply.
func Collect(events <-chan StreamEvent) (*Reply, error) {
	reply := &Reply{ToolResults: []tools.Result{}}
	var content strings.Builder
	for e := range events {
		switch e.Type {
		case EventText:
			content.WriteString(e.Content)
		case EventTool:
			reply.ToolResults = append(reply.ToolResults, *e.Tool)
		case EventUpgrade:
			content.WriteString(e.Content)
			reply.UpgradeRequired = true
			reply.Metrics = e.Metrics
		case EventError:
			return nil, errors.New(e.Error)
		case EventDone:
			if e.Metrics != nil {
				reply.Metrics = e.Metrics
			}
		}
	}
	reply.Content = content.String()
	return reply, nil
}
