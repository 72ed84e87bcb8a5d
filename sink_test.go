package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncSinkForwards(t *testing.T) {
	var mu sync.Mutex
	var got []string
	inner := SinkFunc(func(e Event) {
		mu.Lock()
		got = append(got, e.RequestID)
		mu.Unlock()
	})

	sink := NewAsyncSink(inner, 16, nil)
	for _, id := range []string{"a", "b", "c"} {
		sink.Emit(Event{RequestID: id})
	}
	sink.Close()

	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Expected events forwarded in order, got %v", got)
	}
	if sink.Dropped() != 0 {
		t.Errorf("Expected no drops, got %d", sink.Dropped())
	}
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	inner := SinkFunc(func(Event) {
		once.Do(func() { close(started) })
		<-block
	})

	var drops atomic.Int32
	sink := NewAsyncSink(inner, 1, func() { drops.Add(1) })

	sink.Emit(Event{}) // picked up by the forwarder, which blocks
	<-started
	sink.Emit(Event{}) // fills the buffer
	sink.Emit(Event{}) // dropped
	sink.Emit(Event{}) // dropped

	if sink.Dropped() != 2 || drops.Load() != 2 {
		t.Errorf("Expected 2 drops, got %d/%d", sink.Dropped(), drops.Load())
	}

	close(block)
	sink.Close()
}

func TestAsyncSinkAfterClose(t *testing.T) {
	sink := NewAsyncSink(NopSink{}, 0, nil)
	sink.Close()
	sink.Close()

	sink.Emit(Event{})
	if sink.Dropped() != 1 {
		t.Errorf("Expected emit after close to count as a drop, got %d", sink.Dropped())
	}
}

func TestAsyncSinkSurvivesPanics(t *testing.T) {
	var calls atomic.Int32
	sink := NewAsyncSink(SinkFunc(func(Event) {
		if calls.Add(1) == 1 {
			panic("first event explodes")
		}
	}), 4, nil)

	sink.Emit(Event{})
	sink.Emit(Event{})
	sink.Close()

	if calls.Load() != 2 {
		t.Errorf("Expected forwarder to keep running after a panic, got %d calls", calls.Load())
	}
}

func TestClientWithAsyncSink(t *testing.T) {
	server := envelopeServer(200, okEnvelope)
	defer server.Close()

	var count atomic.Int32
	sink := NewAsyncSink(SinkFunc(func(Event) { count.Add(1) }), 8, nil)
	client := New(WithBaseURL(server.URL), WithSink(sink))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if _, err := client.Get(ctx, "/x", nil); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	sink.Close()

	deadline := time.Now().Add(time.Second)
	for count.Load() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if count.Load() != 2 {
		t.Errorf("Expected pre and post events, got %d", count.Load())
	}
}
