package tasks

import "sync"

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Event describes the terminal outcome of one deferred task.
type Event struct {
	TaskID     string `json:"task_id"`
	Name       string `json:"task"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int    `json:"duration_ms"`
}

// Broker fans task completion events out to per-request subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a request's task set has drained) receive a closed
// channel instead of blocking forever. Each marker is a few bytes, which is
// acceptable for the expected request volume.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new completion-event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives completion events for the given
// request and an unsubscribe function. If the request's task set has already
// drained (Close was called), the returned channel is immediately closed.
func (b *Broker) Subscribe(requestID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[requestID] = t
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

// Publish sends a completion event to all subscribers of the given request.
// Events are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(requestID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop for slow subscribers to avoid blocking task execution.
		}
	}
}

// Close signals that no more events will be published for the given request.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		// Create a closed marker so late subscribers get a closed channel.
		b.topics[requestID] = &eventTopic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
