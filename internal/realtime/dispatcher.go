package realtime

import (
	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/bus"
	"github.com/devpulse/gateway/internal/logging"
)

// Dispatcher consumes bus events and fans each one out to the matching
// subscriptions. Events are matched by key: every non-empty subset of the
// payload-derived filter plus the wildcard key, so a subscription on
// {userId} alone still receives events whose payload also carries a
// teamId. Authorization is re-checked against the payload per connection
// at dispatch time.
type Dispatcher struct {
	gateway *Gateway
}

// NewDispatcher wires the dispatcher onto every topic of the bus.
func NewDispatcher(g *Gateway, b *bus.Bus) *Dispatcher {
	d := &Dispatcher{gateway: g}
	b.SubscribeAll(d.dispatch)
	return d
}

func (d *Dispatcher) dispatch(ev bus.Event) {
	filter := auth.DeriveFilter(ev.Payload)
	keys := candidateKeys(ev.Topic, filter)

	registry := d.gateway.Registry()
	seen := make(map[string]struct{})
	delivered, dropped, denied := 0, 0, 0

	for _, key := range keys {
		for _, id := range registry.Connections(key) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			conn, ok := d.gateway.Lookup(id)
			if !ok {
				continue
			}
			if !auth.AuthorizePayload(conn.Principal, ev.Topic, ev.Payload) {
				denied++
				continue
			}
			if d.gateway.DeliverData(conn, ev.Topic, ev.Payload, ev.Timestamp) {
				delivered++
			} else {
				dropped++
			}
		}
	}

	if dropped > 0 || denied > 0 {
		logging.Debug("dispatch incomplete",
			zap.String("topic", string(ev.Topic)),
			zap.Int("delivered", delivered),
			zap.Int("dropped", dropped),
			zap.Int("denied", denied),
		)
	}
}

// candidateKeys enumerates the subscription keys an event can match: one
// key per non-empty subset of the derived filter, plus the wildcard key.
// Derived filters carry at most a few attributes, so the enumeration is
// tiny.
func candidateKeys(topic bus.Topic, filter auth.Filter) []string {
	attrs := make([]string, 0, len(filter))
	for k := range filter {
		attrs = append(attrs, k)
	}

	n := len(attrs)
	keys := make([]string, 0, 1<<n)
	for mask := 1; mask < 1<<n; mask++ {
		subset := make(map[string]string, n)
		for i, k := range attrs {
			if mask&(1<<i) != 0 {
				subset[k] = filter[k]
			}
		}
		keys = append(keys, SubscriptionKey(topic, subset))
	}
	keys = append(keys, SubscriptionKey(topic, nil))
	return keys
}
