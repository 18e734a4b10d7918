package federation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrSinkClosed is returned by Sink.Send once the consumer has gone away.
var ErrSinkClosed = errors.New("stream sink closed")

// EventType tags a stream event.
type EventType string

const (
	EventColumns EventType = "columns"
	EventRow     EventType = "row"
	EventDone    EventType = "done"
)

// Event is one element of a streamed result: the column list once, then
// one event per row, then done with the row count.
type Event struct {
	Type     EventType
	Columns  []string
	Row      []interface{}
	RowCount int
}

// MarshalJSON renders only the fields that belong to the event's type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventColumns:
		columns := e.Columns
		if columns == nil {
			columns = []string{}
		}
		return json.Marshal(map[string]interface{}{"type": e.Type, "columns": columns})
	case EventRow:
		return json.Marshal(map[string]interface{}{"type": e.Type, "row": e.Row})
	case EventDone:
		return json.Marshal(map[string]interface{}{"type": e.Type, "row_count": e.RowCount})
	default:
		return json.Marshal(map[string]interface{}{"type": e.Type})
	}
}

// Sink receives the events of a streamed federation request in order.
type Sink interface {
	// Send blocks until the event is accepted, the consumer closes the
	// sink (ErrSinkClosed) or ctx ends.
	Send(ctx context.Context, ev Event) error
	// Done is closed when the consumer stops listening.
	Done() <-chan struct{}
}

// ChannelSink is a Sink backed by a bounded channel.
type ChannelSink struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewChannelSink creates a sink buffering up to size events. A non-positive
// size means DefaultStreamBuffer.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = DefaultStreamBuffer
	}
	return &ChannelSink{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

func (s *ChannelSink) Send(ctx context.Context, ev Event) error {
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
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}

// Events is the consumer side. The channel is never closed; consumers stop
// after EventDone or when the producing call returns.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Close signals that the consumer is gone. It is safe to call repeatedly.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}
