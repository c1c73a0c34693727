package discovery

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"lanshare/models"
)

const (
	// EventJoin is emitted the first time a peer id is observed.
	EventJoin EventType = "join"
	// EventLeave is emitted when a peer is evicted for silence.
	EventLeave EventType = "leave"
)

// ErrEventsClosed is returned when publishing after Close.
var ErrEventsClosed = errors.New("discovery: event channel closed")

// EventType identifies peer membership updates.
type EventType string

// Event is a membership update. Peer is only populated for joins.
type Event struct {
	Type   EventType
	PeerID uuid.UUID
	Peer   models.Peer
}

// JoinEvent builds the event announcing peer.
func JoinEvent(peer models.Peer) Event {
	return Event{Type: EventJoin, PeerID: peer.Info.ID, Peer: peer}
}

// LeaveEvent builds the event for an evicted peer id.
func LeaveEvent(id uuid.UUID) Event {
	return Event{Type: EventLeave, PeerID: id}
}

// EventChannel is a bounded ordered queue with a single consumer.
// Producers block while the queue is full; accepted events are never dropped.
type EventChannel struct {
	emitMu sync.Mutex
	closed bool
	ch     chan Event
}

// NewEventChannel returns a queue holding up to buffer pending events.
func NewEventChannel(buffer int) *EventChannel {
	if buffer < 0 {
		buffer = 0
	}
	return &EventChannel{ch: make(chan Event, buffer)}
}

// Events is the consumer side. It is closed by Close.
func (c *EventChannel) Events() <-chan Event {
	return c.ch
}

// Emit runs mutate and publishes the events it returns before any other
// producer may run. Mutations that produce events are therefore published
// in the order they happened. mutate must not block.
func (c *EventChannel) Emit(ctx context.Context, mutate func() []Event) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if c.closed {
		return ErrEventsClosed
	}

	for _, event := range mutate() {
		select {
		case c.ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Publish enqueues a single event.
func (c *EventChannel) Publish(ctx context.Context, event Event) error {
	return c.Emit(ctx, func() []Event { return []Event{event} })
}

// Close ends the stream. Call it only after every producer has stopped.
func (c *EventChannel) Close() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
