package events

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

type EventType string

const (
	// EventTypeStart to EventTypeFinal are the lifecycle of one node's generation
	EventTypeStart             EventType = "start"
	EventTypeFinal             EventType = "final"
	EventTypePartialCompletion EventType = "partial"
	EventTypeError             EventType = "error"
	EventTypeInterrupt         EventType = "interrupt"
)

// EventMetadata identifies which node and session an event belongs to.
type EventMetadata struct {
	SessionID string                   `json:"session_id"`
	NodeID    conversation.NodeID      `json:"node_id"`
	RunID     string                   `json:"run_id,omitempty"`
	Model     string                   `json:"model,omitempty"`
	Usage     *conversation.TokenUsage `json:"usage,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("session_id", em.SessionID)
	e.Str("node_id", em.NodeID.String())
	if em.RunID != "" {
		e.Str("run_id", em.RunID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.Usage != nil {
		e.Int("input_tokens", em.Usage.InputTokens)
		e.Int("output_tokens", em.Usage.OutputTokens)
	}
}

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Error_    string        `json:"error,omitempty"`
	Metadata_ EventMetadata `json:"meta"`

	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

// DecodePayload unmarshals the event's raw payload into a concrete event
// type, e.g. EventPartialCompletion. Only events built by NewEventFromJson
// carry a payload.
func (e *EventImpl) DecodePayload(v interface{}) error {
	if e.payload == nil {
		return errors.New("event carries no payload")
	}
	return json.Unmarshal(e.payload, v)
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	if e.Error_ != "" {
		ev.Str("error", e.Error_)
	}
	ev.Object("meta", e.Metadata_)
}

type EventPartialCompletion struct {
	EventImpl

	Delta string `json:"delta"`
	// Completion is the text accumulated so far
	Completion string `json:"completion"`
}

type EventFinal struct {
	EventImpl

	Text string `json:"text"`
}

type EventInterrupt struct {
	EventImpl

	// Text accumulated up to the cancellation
	Text string `json:"text"`
}

func NewStartEvent(metadata EventMetadata) *EventImpl {
	return &EventImpl{Type_: EventTypeStart, Metadata_: metadata}
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  EventImpl{Type_: EventTypePartialCompletion, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

func NewErrorEvent(metadata EventMetadata, err error) *EventImpl {
	e := &EventImpl{Type_: EventTypeError, Metadata_: metadata}
	if err != nil {
		e.Error_ = err.Error()
	}
	return e
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}

// NewEventFromJson decodes an event that was serialized by a sink.
func NewEventFromJson(data []byte) (*EventImpl, error) {
	var e EventImpl
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	e.payload = data
	return &e, nil
}
