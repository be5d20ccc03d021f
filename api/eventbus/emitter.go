package eventbus

import (
	"context"
	"sync"

	"github.com/bluetuith-org/adapterd/internal/worker"

	"github.com/cskr/pubsub/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// EventPublisher represents an interface that provides an event publisher.
type EventPublisher interface {
	// Publish publishes an event to the event stream.
	Publish(id EventID, data any)
}

// EventSubscriber represents an interface that provides an event subscriber.
type EventSubscriber interface {
	// Subscribe subscribes to one or more events from the event stream.
	// Events of all the provided IDs arrive on a single channel, in publish order.
	Subscribe(ids ...EventID) SubscriberID
}

// EventHandler represents an interface that provides an event publisher and subscriber.
type EventHandler interface {
	EventPublisher
	EventSubscriber
}

// nilEventHandler represents a disabled event handler.
type nilEventHandler struct{}

// Bus is the default event handler, a topic based fan-out over a single
// dispatcher goroutine. Every subscriber channel receives the events of its
// topics in the order they were published.
//
// Each subscription is fed through its own unbounded relay, so publishers
// never wait for a subscriber to read, and a stalled subscriber only grows
// its own queue.
type Bus struct {
	ps *pubsub.PubSub[uint, any]

	subscribers *xsync.MapOf[chan any, []uint]
	published   *xsync.Counter

	closing chan struct{}
	closed  atomic.Bool
	mu      sync.RWMutex
}

// New returns a new event bus. Capacity is the size of the bus command
// queue. Subscriber queues are unbounded.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}

	return &Bus{
		ps:          pubsub.New[uint, any](capacity),
		subscribers: xsync.NewMapOf[chan any, []uint](),
		published:   xsync.NewCounter(),
		closing:     make(chan struct{}),
	}
}

// NilHandler returns a disabled event handler.
func NilHandler() EventHandler {
	return &nilEventHandler{}
}

// Publish publishes an event to the event stream.
// It does not wait for subscribers to receive the event.
func (b *Bus) Publish(id EventID, data any) {
	if id == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed.Load() {
		return
	}

	b.published.Inc()
	b.ps.Pub(data, id.Value())
}

// Subscribe subscribes to one or more events from the event stream.
func (b *Bus) Subscribe(ids ...EventID) SubscriberID {
	topics := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			topics = append(topics, id.Value())
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed.Load() || len(topics) == 0 {
		return (&nilEventHandler{}).Subscribe()
	}

	in := b.ps.Sub(topics...)
	out := make(chan any)
	b.subscribers.Store(out, topics)

	go b.relay(in, out)

	return SubscriberID{
		C:      out,
		active: true,
		unsub: func() {
			if _, ok := b.subscribers.LoadAndDelete(out); !ok {
				return
			}

			b.mu.RLock()
			defer b.mu.RUnlock()

			if !b.closed.Load() {
				b.ps.Unsub(in, topics...)
			}
		},
	}
}

// relay moves events from the dispatcher channel in to the subscriber
// channel out. Reading in never waits for the subscriber, so the
// dispatcher is never held up. Once in is closed, the queued events
// are delivered and out is closed. After Shutdown, queued events
// that the subscriber does not read are dropped.
func (b *Bus) relay(in <-chan any, out chan<- any) {
	queue := worker.New[any]("eventbus-relay", nil, func(data any) {
		select {
		case out <- data:
		case <-b.closing:
		}
	})
	queue.Start(context.Background())

	for data := range in {
		queue.Post(data)
	}

	queue.Stop(worker.Drain)
	close(out)
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	return b.subscribers.Size()
}

// Published returns the number of events published so far.
func (b *Bus) Published() int64 {
	return b.published.Value()
}

// Shutdown closes every subscriber channel. Events published
// afterwards are discarded.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Swap(true) {
		return
	}

	close(b.closing)
	b.subscribers.Clear()
	b.ps.Shutdown()
}

// Publish does not do anything.
func (n *nilEventHandler) Publish(EventID, any) {
}

// Subscribe does not do anything.
func (n *nilEventHandler) Subscribe(...EventID) SubscriberID {
	ch := make(chan any)
	close(ch)
	return SubscriberID{C: ch}
}
