package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	events []*Event
	err    error
}

func (r *memoryRepo) Insert(_ context.Context, event *Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRepo) ListByClient(_ context.Context, clientID string, limit int) ([]*Event, error) {
	var out []*Event
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].ClientID == clientID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func TestService_LogPersists(t *testing.T) {
	logger, _ := test.NewNullLogger()
	repo := &memoryRepo{}
	svc := NewService(repo, logger)

	evt := NewEvent(EventStageAdvance, "client-a").With("to", 3)
	require.NoError(t, svc.Log(context.Background(), evt))

	events, err := svc.ClientEvents(context.Background(), "client-a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventStageAdvance, events[0].EventType)
	assert.Equal(t, 3, events[0].Metadata["to"])
}

func TestService_LogWithoutRepository(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := NewService(nil, logger)

	require.NoError(t, svc.Log(context.Background(), NewEvent(EventSessionCreate, "client-a")))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, EventSessionCreate, entry.Data["audit"])
}

func TestService_RepositoryFailureIsSwallowed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := NewService(&memoryRepo{err: errors.New("db down")}, logger)

	assert.NoError(t, svc.Log(context.Background(), NewEvent(EventPaymentVerify, "client-a")))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
