package events

// EventSink represents a destination for generation events.
// Implementations can publish events to different backends like watermill,
// logging systems, or UI update loops.
type EventSink interface {
	// PublishEvent publishes an event to the sink.
	// Returns an error if the event could not be published.
	PublishEvent(event Event) error
}

// NullSink discards all events.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

var _ EventSink = NullSink{}

// CallbackSink forwards every event to a function. Useful for tests and
// for wiring events straight into a UI event loop.
type CallbackSink struct {
	fn func(Event)
}

func NewCallbackSink(fn func(Event)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

func (cs *CallbackSink) PublishEvent(event Event) error {
	if cs.fn != nil {
		cs.fn(event)
	}
	return nil
}

var _ EventSink = (*CallbackSink)(nil)
