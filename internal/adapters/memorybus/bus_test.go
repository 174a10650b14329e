package memorybus

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish("run.started", []byte(`{"runId":"r1"}`))

	select {
	case evt := <-ch:
		if evt.Topic != "run.started" || string(evt.Payload) != `{"runId":"r1"}` {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestBus_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	b := NewWithBuffer(2)
	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("episode.stage", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	if got := b.Dropped(); got != 8 {
		t.Fatalf("expected 8 dropped events, got %d", got)
	}
}

func TestBus_CancelAndClose(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}

	ch2, _ := b.Subscribe()
	b.Close()
	if _, ok := <-ch2; ok {
		t.Fatalf("channel should be closed after Close")
	}

	ch3, _ := b.Subscribe()
	if _, ok := <-ch3; ok {
		t.Fatalf("subscribe after Close should return a closed channel")
	}
	b.Publish("ignored", nil)
}
