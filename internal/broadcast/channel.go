package broadcast

import (
	"context"
	"log"
	"sync"
)

// Channel fans session events out to subscribed viewers. A single
// goroutine owns the subscriber set and performs all deliveries, so every
// subscriber observes events for one session in publication order.
// Delivery is best-effort and at-most-once: a subscriber whose buffer is
// full loses the event rather than blocking the publisher.
type Channel struct {
	publishCh     chan Event
	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	shutdownCh    chan struct{}

	running bool
	mu      sync.RWMutex
}

// Subscription is one viewer's membership in the channel. Events arrive
// on C until Unsubscribe closes it.
type Subscription struct {
	C       chan Event
	channel *Channel
	dropped int
}

// Subscriber buffer. Sized for a dashboard falling one redraw behind a
// burst of pings, not for history.
const subscriptionBuffer = 64

// NewChannel creates a broadcast channel. Call Start before publishing.
func NewChannel() *Channel {
	return &Channel{
		publishCh:     make(chan Event, 256),
		subscribeCh:   make(chan *Subscription, 16),
		unsubscribeCh: make(chan *Subscription, 16),
		shutdownCh:    make(chan struct{}),
	}
}

// Start begins the fan-out goroutine.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrChannelAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Stop shuts down the fan-out goroutine and closes every subscriber.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrChannelNotRunning
	}
	c.running = false

	select {
	case <-c.shutdownCh:
	default:
		close(c.shutdownCh)
	}
	return nil
}

// Publish queues an event for delivery to all current subscribers.
// Returns ErrChannelFull rather than blocking the coordinator.
func (c *Channel) Publish(event Event) error {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		return ErrChannelNotRunning
	}
	c.mu.RUnlock()

	select {
	case c.publishCh <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// Subscribe joins the channel. Events published before the subscription
// is processed are not replayed; late joiners query current state through
// the HTTP API instead.
func (c *Channel) Subscribe() (*Subscription, error) {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		return nil, ErrChannelNotRunning
	}
	c.mu.RUnlock()

	sub := &Subscription{
		C:       make(chan Event, subscriptionBuffer),
		channel: c,
	}

	select {
	case c.subscribeCh <- sub:
		return sub, nil
	case <-c.shutdownCh:
		return nil, ErrChannelNotRunning
	}
}

// Unsubscribe leaves the channel. The event channel is closed by the
// fan-out goroutine; Unsubscribe is safe to call once per subscription.
func (s *Subscription) Unsubscribe() {
	c := s.channel
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return // Stop already closed every subscriber
	}

	select {
	case c.unsubscribeCh <- s:
	case <-c.shutdownCh:
	}
}

// run owns the subscriber set. Single-goroutine ownership means no lock
// is needed around the map and delivery order is deterministic.
func (c *Channel) run(ctx context.Context) {
	subscribers := make(map[*Subscription]struct{})

	defer func() {
		for sub := range subscribers {
			close(sub.C)
		}
		log.Println("broadcast: channel stopped")
	}()

	for {
		select {
		case event := <-c.publishCh:
			for sub := range subscribers {
				select {
				case sub.C <- event:
				default:
					// Lagging viewer: drop, it resyncs via the API.
					sub.dropped++
				}
			}

		case sub := <-c.subscribeCh:
			subscribers[sub] = struct{}{}

		case sub := <-c.unsubscribeCh:
			if _, ok := subscribers[sub]; ok {
				delete(subscribers, sub)
				close(sub.C)
			}

		case <-c.shutdownCh:
			return

		case <-ctx.Done():
			// Nobody called Stop; mark the channel stopped so Publish
			// and Subscribe start failing instead of filling a buffer
			// nothing drains.
			c.mu.Lock()
			c.running = false
			select {
			case <-c.shutdownCh:
			default:
				close(c.shutdownCh)
			}
			c.mu.Unlock()
			return
		}
	}
}
