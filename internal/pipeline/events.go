package pipeline

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Event types.
const (
	EventStageStarted  = "stage_started"
	EventStageFinished = "stage_finished"
	EventBuildFinished = "build_finished"
)

// Event is a single build progress notification.
type Event struct {
	Type        string    `json:"type"`
	BuildID     string    `json:"build_id"`
	Stage       string    `json:"stage,omitempty"`
	Status      string    `json:"status"`
	Pass        *bool     `json:"pass,omitempty"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// EventBroker manages per-build event streaming to subscribers.
// It is safe for concurrent use.
//
// Closed topics are kept as markers so a subscriber that arrives after a
// build finished gets a closed channel instead of blocking forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives events for the given build and
// an unsubscribe function. If the build already finished, the returned
// channel is closed.
func (b *EventBroker) Subscribe(buildID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[buildID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[buildID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of ev.BuildID. Events are
// dropped for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.BuildID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close signals that no more events will be published for the build.
func (b *EventBroker) Close(buildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[buildID]
	if !ok {
		b.topics[buildID] = &topic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
