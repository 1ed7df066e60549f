package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelrizz/travelrizz-backend/internal/logging"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_FansOutToEveryTab(t *testing.T) {
	bus := NewBus(4, logging.Discard())

	tab1, cancel1 := bus.Subscribe("client-a")
	defer cancel1()
	tab2, cancel2 := bus.Subscribe("client-a")
	defer cancel2()
	other, cancel3 := bus.Subscribe("client-b")
	defer cancel3()

	bus.Publish("client-a", StageChanged{From: 2, To: 3})

	for _, ch := range []<-chan Event{tab1, tab2} {
		evt := receive(t, ch)
		assert.Equal(t, TypeStageChanged, evt.Type)
		assert.Equal(t, StageChanged{From: 2, To: 3}, evt.Payload)
	}

	select {
	case evt := <-other:
		t.Fatalf("unexpected event for other client: %v", evt)
	default:
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus(1, logging.Discard())

	ch, cancel := bus.Subscribe("client-a")
	require.Equal(t, 1, bus.Subscribers("client-a"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers("client-a"))
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1, logging.Discard())

	ch, cancel := bus.Subscribe("client-a")
	defer cancel()

	bus.Publish("client-a", PlacesChanged{Count: 1})
	bus.Publish("client-a", PlacesChanged{Count: 2})

	evt := receive(t, ch)
	assert.Equal(t, PlacesChanged{Count: 1}, evt.Payload)
	assert.Len(t, ch, 0)
}
