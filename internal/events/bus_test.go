package events

import (
	"errors"
	"testing"
)

func TestPublishInvokesInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string

	bus.Subscribe(EventBallAccepted, func(Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(EventBallAccepted, func(Event) error {
		order = append(order, "second")
		return nil
	})

	bus.Publish(Event{Type: EventBallAccepted, MatchID: "m1"})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handler order = %v, want [first second]", order)
	}
}

func TestSubscribeMatchFiltersOtherMatches(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.SubscribeMatch(EventBallAccepted, "m1", func(e Event) error {
		got = append(got, e.MatchID)
		return nil
	})

	bus.Publish(Event{Type: EventBallAccepted, MatchID: "m1"})
	bus.Publish(Event{Type: EventBallAccepted, MatchID: "m2"})
	bus.Publish(Event{Type: EventBallAccepted, MatchID: "m1"})

	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2", len(got))
	}
	for _, id := range got {
		if id != "m1" {
			t.Errorf("delivered event for match %s, want m1 only", id)
		}
	}
}

func TestHandlerErrorDoesNotStopDispatch(t *testing.T) {
	bus := NewBus()
	reached := false

	bus.Subscribe(EventMatchComplete, func(Event) error {
		return errors.New("handler broke")
	})
	bus.Subscribe(EventMatchComplete, func(Event) error {
		reached = true
		return nil
	})

	bus.Publish(Event{Type: EventMatchComplete, MatchID: "m1"})

	if !reached {
		t.Error("second handler not invoked after first errored")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	bus.Publish(Event{Type: EventInningsComplete, MatchID: "m1"})
}
