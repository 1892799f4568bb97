package api

import (
	"sync"

	"github.com/bitswalk/yfab/src/yfab/operation"
)

// subscriberBuffer is the per-client event backlog. A client that falls
// further behind loses events.
const subscriberBuffer = 512

// Broadcaster is the single consumer of the controller's event channel. It
// fans events out to every connected event stream.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan operation.Event]struct{}
	closed bool
	// OnEvent, when set, sees every event before it is fanned out
	OnEvent func(operation.Event)
}

// NewBroadcaster creates an idle broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan operation.Event]struct{})}
}

// Run forwards events until the channel is closed, then closes every
// subscription
func (b *Broadcaster) Run(events <-chan operation.Event) {
	for e := range events {
		if b.OnEvent != nil {
			b.OnEvent(e)
		}
		b.publish(e)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

func (b *Broadcaster) publish(e operation.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.Warn("Event stream client too slow, dropping event", "operation", e.OperationID, "type", e.Type)
		}
	}
}

// Subscribe registers a client. The returned cancel function must be
// called when the client goes away. The channel is closed when the
// broadcaster stops.
func (b *Broadcaster) Subscribe() (<-chan operation.Event, func()) {
	ch := make(chan operation.Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of connected clients
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
