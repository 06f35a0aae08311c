package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe(EventAssignmentChanged, received)

	bus.Publish(Event{
		Type:      EventAssignmentChanged,
		Timestamp: time.Now(),
		Data:      map[string]int64{"session_id": 100},
	})

	select {
	case evt := <-received:
		if evt.Type != EventAssignmentChanged {
			t.Errorf("expected %s, got %s", EventAssignmentChanged, evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe(EventAssignmentChanged, ch1)
	bus.Subscribe(EventAssignmentChanged, ch2)

	bus.Publish(Event{Type: EventAssignmentChanged})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	assignCh := make(chan Event, 10)
	attentionCh := make(chan Event, 10)
	bus.Subscribe(EventAssignmentChanged, assignCh)
	bus.Subscribe(EventAttentionChanged, attentionCh)

	bus.Publish(Event{Type: EventAssignmentChanged})

	select {
	case <-assignCh:
	case <-time.After(time.Second):
		t.Fatal("assignment subscriber did not receive event")
	}

	select {
	case <-attentionCh:
		t.Fatal("attention subscriber should NOT receive an assignment.changed event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublishConcurrent(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe(EventAssignmentChanged, received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bus.Publish(Event{Type: EventAssignmentChanged, Data: n})
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New()
	received := make(chan Event, 1)
	bus.Subscribe(EventAssignmentChanged, received)
	bus.Close()

	bus.Publish(Event{Type: EventAssignmentChanged})

	select {
	case <-received:
		t.Fatal("expected no event after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
