// Package bus implements the process-local typed topic bus that carries
// domain events from producers to the realtime dispatcher.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/logging"
)

// Topic identifies one of the closed set of event streams.
type Topic string

const (
	TopicMetricUpdated     Topic = "metric_updated"
	TopicFlowStateUpdated  Topic = "flow_state_updated"
	TopicAlertCreated      Topic = "alert_created"
	TopicDashboardUpdated  Topic = "dashboard_updated"
	TopicTeamUpdated       Topic = "team_updated"
	TopicUserStatusUpdated Topic = "user_status_updated"
)

// Topics lists every known topic.
var Topics = []Topic{
	TopicMetricUpdated,
	TopicFlowStateUpdated,
	TopicAlertCreated,
	TopicDashboardUpdated,
	TopicTeamUpdated,
	TopicUserStatusUpdated,
}

// Valid reports whether t names a known topic.
func (t Topic) Valid() bool {
	switch t {
	case TopicMetricUpdated, TopicFlowStateUpdated, TopicAlertCreated,
		TopicDashboardUpdated, TopicTeamUpdated, TopicUserStatusUpdated:
		return true
	}
	return false
}

// Event is a single published value. Events are delivered and discarded;
// nothing is persisted.
type Event struct {
	Topic     Topic
	Payload   map[string]interface{}
	Timestamp time.Time
}

// Consumer receives events for a topic. Consumers run synchronously with
// the publisher and must not block; anything slow queues internally.
type Consumer func(Event)

// Bus is a synchronous in-process publish/subscribe hub. Within one topic,
// a subscriber observes events in publisher order. Delivery is
// at-most-once; a panicking consumer is isolated and logged.
type Bus struct {
	mu        sync.RWMutex
	consumers map[Topic][]Consumer
	publishes func(topic string) // optional metric hook
	closed    atomic.Bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{consumers: make(map[Topic][]Consumer)}
}

// OnPublish installs a hook invoked once per publish, used for metrics.
// Must be called before the bus is shared across goroutines.
func (b *Bus) OnPublish(fn func(topic string)) {
	b.publishes = fn
}

// Subscribe registers a consumer for a topic.
func (b *Bus) Subscribe(topic Topic, fn Consumer) {
	b.mu.Lock()
	b.consumers[topic] = append(b.consumers[topic], fn)
	b.mu.Unlock()
}

// SubscribeAll registers a consumer on every known topic.
func (b *Bus) SubscribeAll(fn Consumer) {
	for _, t := range Topics {
		b.Subscribe(t, fn)
	}
}

// Close detaches the bus from its consumers. Publishes after Close are
// dropped, so draining connections stop receiving new frames during
// shutdown. Close is idempotent.
func (b *Bus) Close() {
	b.closed.Store(true)
}

// Publish delivers the event to every consumer registered for its topic.
// Publish never returns an error and never propagates consumer panics.
// A closed bus drops the event.
func (b *Bus) Publish(topic Topic, payload map[string]interface{}) {
	if b.closed.Load() {
		return
	}
	ev := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	consumers := b.consumers[topic]
	b.mu.RUnlock()

	if b.publishes != nil {
		b.publishes(string(topic))
	}

	for _, fn := range consumers {
		deliver(fn, ev)
	}
}

func deliver(fn Consumer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("bus consumer panicked",
				zap.String("topic", string(ev.Topic)),
				zap.Any("panic", r))
		}
	}()
	fn(ev)
}
