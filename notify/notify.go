// Package notify carries orchestrator events to whoever is observing it.
package notify

import (
	"errors"
	"sync"
)

// Kind identifies a notification event.
type Kind string

const (
	KindStatus           Kind = "status"
	KindOutput           Kind = "output"
	KindExecutionStarted Kind = "execution_started"
	KindExecutionEnded   Kind = "execution_ended"
	KindImportsLoaded    Kind = "imports_loaded"
)

// ErrSinkClosed is returned when notifying a sink nobody listens to anymore.
var ErrSinkClosed = errors.New("notification sink closed")

// Event is a single fire-and-forget notification. RequestID is set on events
// caused by a tagged request.
type Event struct {
	Kind      Kind
	Text      string
	RequestID string
}

// For returns a copy of ev tagged with a request ID.
func (ev Event) For(requestID string) Event {
	ev.RequestID = requestID
	return ev
}

func StatusMessage(text string) Event { return Event{Kind: KindStatus, Text: text} }
func Output(text string) Event { return Event{Kind: KindOutput, Text: text} }
func ExecutionStarted() Event { return Event{Kind: KindExecutionStarted} }
func ExecutionEnded() Event { return Event{Kind: KindExecutionEnded} }
func ImportsLoaded(manifest string) Event { return Event{Kind: KindImportsLoaded, Text: manifest} }

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event) error

func (f SinkFunc) Notify(ev Event) error {
	return f(ev)
}

// ChanSink delivers events over a buffered channel. Notify blocks while the
// buffer is full until the sink is closed.
type ChanSink struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (s *ChanSink) Notify(ev Event) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSinkClosed
	}
}

// Events returns the receive side of the sink.
func (s *ChanSink) Events() <-chan Event {
	return s.events
}

// Done is closed once the sink is closed.
func (s *ChanSink) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery. Events already buffered stay readable.
func (s *ChanSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
