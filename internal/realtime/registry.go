package realtime

import (
	"sort"
	"strings"
	"sync"

	"github.com/devpulse/gateway/internal/bus"
)

// SubscriptionKey derives the canonical key for a (topic, filter) pair:
// filters serialized in sorted key order as topic:{k1=v1,k2=v2}. An empty
// filter map yields the wildcard key topic:{}.
func SubscriptionKey(topic bus.Topic, filters map[string]string) string {
	if len(filters) == 0 {
		return string(topic) + ":{}"
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(topic))
	b.WriteString(":{")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filters[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Registry holds the two subscription indices. One lock protects both so
// they can never disagree; disconnect cleanup runs under the write lock
// for its whole traversal.
type Registry struct {
	mu           sync.RWMutex
	byKey        map[string]map[string]struct{}
	byConnection map[string]map[string]struct{}
	onCount      func(n int)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:        make(map[string]map[string]struct{}),
		byConnection: make(map[string]map[string]struct{}),
	}
}

// OnCount installs a hook invoked with the total entry count after every
// mutation, used for the subscriptions gauge.
func (r *Registry) OnCount(fn func(n int)) {
	r.mu.Lock()
	r.onCount = fn
	r.mu.Unlock()
}

// Subscribe records (connectionID, key). Returns false when the entry
// already existed; the operation is idempotent either way.
func (r *Registry) Subscribe(connectionID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byKey[key]
	if !ok {
		conns = make(map[string]struct{})
		r.byKey[key] = conns
	}
	if _, exists := conns[connectionID]; exists {
		return false
	}
	conns[connectionID] = struct{}{}

	keys, ok := r.byConnection[connectionID]
	if !ok {
		keys = make(map[string]struct{})
		r.byConnection[connectionID] = keys
	}
	keys[key] = struct{}{}

	r.reportLocked()
	return true
}

// Unsubscribe removes (connectionID, key). Idempotent.
func (r *Registry) Unsubscribe(connectionID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connectionID, key)
	r.reportLocked()
}

// RemoveConnection purges every entry for the connection atomically.
func (r *Registry) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.byConnection[connectionID] {
		r.removeLocked(connectionID, key)
	}
	delete(r.byConnection, connectionID)
	r.reportLocked()
}

func (r *Registry) removeLocked(connectionID, key string) {
	if conns, ok := r.byKey[key]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.byKey, key)
		}
	}
	if keys, ok := r.byConnection[connectionID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.byConnection, connectionID)
		}
	}
}

// Connections returns the subscriber ids for a key.
func (r *Registry) Connections(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byKey[key]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// KeysFor returns the subscription keys held by a connection.
func (r *Registry) KeysFor(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byConnection[connectionID]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out
}

// Len returns the total number of (connection, key) entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	n := 0
	for _, keys := range r.byConnection {
		n += len(keys)
	}
	return n
}

func (r *Registry) reportLocked() {
	if r.onCount != nil {
		r.onCount(r.lenLocked())
	}
}
