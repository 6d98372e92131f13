package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type collectorKey struct{}

// Collector accumulates the events raised while serving one request.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// WithCollector attaches a fresh collector to ctx.
func WithCollector(ctx context.Context) (context.Context, *Collector) {
	c := &Collector{}
	return context.WithValue(ctx, collectorKey{}, c), c
}

// CollectorFrom returns the collector attached to ctx, if any.
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// Events returns a copy of the collected events in emission order.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *Collector) add(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// CollectNotifier appends events to the collector found on the context.
// Events raised outside a request are ignored.
type CollectNotifier struct{}

// Notify implements Notifier.
func (CollectNotifier) Notify(ctx context.Context, event Event) error {
	if c := CollectorFrom(ctx); c != nil {
		c.add(event)
	}
	return nil
}

// LogNotifier writes every event to a zerolog logger at debug level.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Debug().
		Str("topic", event.Topic).
		Str("session_id", event.SessionID).
		RawJSON("payload", event.Payload).
		Msg("checkout_event")
	return nil
}
