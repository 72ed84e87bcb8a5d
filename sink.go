package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

// Phase marks where in the request lifecycle an Event was produced.
type Phase string

const (
	PhasePre   Phase = "pre"
	PhasePost  Phase = "post"
	PhaseError Phase = "error"
)

// Event is one observability record. Params and Data carry the request
// params/body on pre events and the response data on post events.
type Event struct {
	Phase       Phase
	RequestID   string
	Method      string
	URL         string
	Fingerprint string
	Params      any
	Data        any
	Message     string
	Kind        ErrorKind
	StatusCode  int
	Duration    time.Duration
}

// Sink receives observability events. Emit must not block; the client
// recovers panics raised by a sink.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events through a Logger.
type LogSink struct {
	logger Logger
}

// NewLogSink returns a sink that logs pre/post events at debug level and
// errors at error level.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e Event) {
	if s == nil || s.logger == nil {
		return
	}
	switch e.Phase {
	case PhasePre:
		s.logger.Debug("request dispatched", "requestID", e.RequestID, "method", e.Method, "url", e.URL, "params", e.Params, "data", e.Data)
	case PhasePost:
		s.logger.Debug("response received", "requestID", e.RequestID, "method", e.Method, "url", e.URL, "status", e.StatusCode, "message", e.Message, "duration", e.Duration)
	case PhaseError:
		s.logger.Error(e.Message, "requestID", e.RequestID, "method", e.Method, "url", e.URL, "kind", e.Kind.String(), "status", e.StatusCode, "duration", e.Duration)
	}
}

// AsyncSink forwards events to another sink on a background goroutine.
// When its buffer is full new events are dropped rather than blocking.
type AsyncSink struct {
	inner   Sink
	ch      chan Event
	done    chan struct{}
	onDrop  func()
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewAsyncSink starts the forwarding goroutine. onDrop, when non-nil, is
// called for every dropped event.
func NewAsyncSink(inner Sink, buffer int, onDrop func()) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		inner:  inner,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for e := range s.ch {
		s.forward(e)
	}
}

func (s *AsyncSink) forward(e Event) {
	defer func() { _ = recover() }()
	s.inner.Emit(e)
}

func (s *AsyncSink) Emit(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop()
		return
	}
	select {
	case s.ch <- e:
	default:
		s.drop()
	}
}

func (s *AsyncSink) drop() {
	s.dropped.Add(1)
	if s.onDrop != nil {
		s.onDrop()
	}
}

// Dropped returns the number of events discarded so far.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}
