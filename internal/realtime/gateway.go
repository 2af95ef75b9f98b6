package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/bus"
	"github.com/devpulse/gateway/internal/config"
	"github.com/devpulse/gateway/internal/logging"
	"github.com/devpulse/gateway/internal/metrics"
)

// Client-visible error messages.
const (
	msgInsufficientPermissions = "Insufficient permissions for this subscription"
	msgInvalidMessageFormat    = "Invalid message format"
)

// Enricher supplements a token-derived principal with team membership and
// the active flag before the connection is admitted.
type Enricher func(p *auth.Principal) *auth.Principal

// Gateway owns the connection table and the inbound message router.
type Gateway struct {
	cfg      config.WebSocketConfig
	verifier *auth.Verifier
	registry *Registry
	metrics  *metrics.Registry
	enrich   Enricher

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Connection

	accepting     atomic.Bool
	heartbeatStop chan struct{}
	stopOnce      sync.Once
}

// NewGateway creates a Gateway and starts its heartbeat loop.
func NewGateway(cfg config.WebSocketConfig, verifier *auth.Verifier, registry *Registry, reg *metrics.Registry) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		verifier: verifier,
		registry: registry,
		metrics:  reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Browser clients send Origin; cross-origin access is governed
			// by the bearer token, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:         make(map[string]*Connection),
		heartbeatStop: make(chan struct{}),
	}
	g.accepting.Store(true)

	go g.heartbeatLoop()

	return g
}

// SetEnricher installs the principal enrichment step. Must be called
// before the gateway starts accepting.
func (g *Gateway) SetEnricher(fn Enricher) {
	g.enrich = fn
}

// Registry exposes the subscription registry for the dispatcher.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// ServeHTTP upgrades /ws requests. Authentication is mandatory here:
// missing or invalid credentials close the socket with 1008 immediately
// after the upgrade completes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.accepting.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	principal, authErr := g.verifier.VerifyRequest(r)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	if authErr != nil || principal.IsAnonymous() {
		if g.metrics != nil {
			reason := "missing_token"
			if failure, ok := authErr.(*auth.AuthFailure); ok {
				reason = failure.Reason
			}
			g.metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
		}
		deadline := time.Now().Add(g.cfg.WriteTimeout)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"),
			deadline)
		ws.Close()
		return
	}

	if g.enrich != nil {
		principal = g.enrich(principal)
	}

	conn := newConnection(uuid.New().String(), principal, ws,
		g.cfg.SendQueueSize, g.cfg.StrictBackpressure, g.cfg.WriteTimeout)
	conn.onDead = func(int) { g.remove(conn) }
	if g.metrics != nil {
		conn.onDrop = g.metrics.OutboundDropsTotal.Inc
	}

	ws.SetPongHandler(func(string) error {
		conn.markAlive()
		return nil
	})

	g.add(conn)

	conn.Enqueue(ConnectionEstablishedFrame(conn.ID, principal))

	go conn.writePump()
	go g.readPump(conn)

	logging.Info("connection established",
		zap.String("connection_id", conn.ID),
		zap.String("user_id", principal.ID),
		zap.String("role", principal.Role.String()),
	)
}

// Lookup returns a live connection by id.
func (g *Gateway) Lookup(id string) (*Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.conns[id]
	return c, ok
}

// ConnectionCount returns the number of live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// BroadcastToUser writes a frame to every connection owned by the user,
// bypassing the subscription registry.
func (g *Gateway) BroadcastToUser(userID string, frame []byte) int {
	g.mu.RLock()
	targets := make([]*Connection, 0, 4)
	for _, c := range g.conns {
		if c.Principal.ID == userID {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.Enqueue(frame) {
			sent++
		}
	}
	return sent
}

// BroadcastToTeam writes a frame to every connection whose principal is a
// member of the team.
func (g *Gateway) BroadcastToTeam(teamID string, frame []byte) int {
	g.mu.RLock()
	targets := make([]*Connection, 0, 8)
	for _, c := range g.conns {
		if c.Principal.InTeam(teamID) {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.Enqueue(frame) {
			sent++
		}
	}
	return sent
}

// Shutdown stops accepting, cancels the heartbeat, closes every
// connection with 1001, and waits for writers to drain within the drain
// budget. Connections still busy at the deadline are hard-terminated.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.accepting.Store(false)
	g.stopOnce.Do(func() { close(g.heartbeatStop) })

	g.mu.Lock()
	conns := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	deadline := time.Now().Add(g.cfg.DrainTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			drainThenClose(c, deadline)
		}(c)
	}
	wg.Wait()

	g.mu.Lock()
	g.conns = make(map[string]*Connection)
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.ConnectionsActive.Set(0)
	}

	logging.Info("gateway shutdown complete", zap.Int("connections_closed", len(conns)))
}

// drainThenClose lets the writer flush its queue until the deadline, then
// closes with 1001.
func drainThenClose(c *Connection, deadline time.Time) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for len(c.send) > 0 && time.Now().Before(deadline) {
		select {
		case <-ticker.C:
		case <-c.Done():
			return
		}
	}
	c.Terminate(websocket.CloseGoingAway)
}

func (g *Gateway) add(c *Connection) {
	g.mu.Lock()
	g.conns[c.ID] = c
	n := len(g.conns)
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.ConnectionsActive.Set(float64(n))
		g.metrics.ConnectionsTotal.Inc()
	}
}

// remove deletes the connection from the table and atomically purges its
// registry entries.
func (g *Gateway) remove(c *Connection) {
	g.mu.Lock()
	if _, ok := g.conns[c.ID]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.conns, c.ID)
	n := len(g.conns)
	g.mu.Unlock()

	g.registry.RemoveConnection(c.ID)

	if g.metrics != nil {
		g.metrics.ConnectionsActive.Set(float64(n))
	}
	logging.Info("connection closed",
		zap.String("connection_id", c.ID),
		zap.String("user_id", c.Principal.ID),
		zap.Int64("dropped_frames", c.Drops()),
	)
}

// readPump decodes inbound frames and routes them. It owns the socket's
// read side; any read error terminates the connection.
func (g *Gateway) readPump(c *Connection) {
	defer func() {
		c.Terminate(websocket.CloseGoingAway)
		g.remove(c)
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("read error",
					zap.String("connection_id", c.ID),
					zap.Error(err),
				)
			}
			return
		}
		g.route(c, raw)
	}
}

// route handles one inbound client frame.
func (g *Gateway) route(c *Connection, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.Enqueue(ErrorFrame(msgInvalidMessageFormat))
		return
	}

	switch frame.Type {
	case FrameSubscribe:
		g.handleSubscribe(c, frame.Data)
	case FrameUnsubscribe:
		g.handleUnsubscribe(c, frame.Data)
	case FramePing:
		c.markAlive()
		c.Enqueue(PongFrame())
	default:
		c.Enqueue(ErrorFrame(msgInvalidMessageFormat))
	}
}

// handleSubscribe authorizes and registers one subscription. The
// confirmation is enqueued before the registry insert: once the
// dispatcher can see the subscription, the confirmation already sits
// ahead of any subscription_data in the writer FIFO.
func (g *Gateway) handleSubscribe(c *Connection, data json.RawMessage) {
	var sub SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil || !sub.Topic.Valid() {
		c.Enqueue(ErrorFrame(msgInvalidMessageFormat))
		return
	}

	if !auth.Authorize(c.Principal, sub.Topic, auth.Filter(sub.Filters)) {
		logging.Warn("subscription denied",
			zap.String("connection_id", c.ID),
			zap.String("user_id", c.Principal.ID),
			zap.String("topic", string(sub.Topic)),
			zap.Any("filters", sub.Filters),
		)
		c.Enqueue(ErrorFrame(msgInsufficientPermissions))
		return
	}

	key := SubscriptionKey(sub.Topic, sub.Filters)
	c.Enqueue(SubscriptionConfirmedFrame(sub.Topic, sub.Filters, key))
	g.registry.Subscribe(c.ID, key)
}

// handleUnsubscribe removes the subscription unconditionally. Idempotent.
func (g *Gateway) handleUnsubscribe(c *Connection, data json.RawMessage) {
	var sub SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil || !sub.Topic.Valid() {
		c.Enqueue(ErrorFrame(msgInvalidMessageFormat))
		return
	}

	g.registry.Unsubscribe(c.ID, SubscriptionKey(sub.Topic, sub.Filters))
	c.Enqueue(UnsubscriptionConfirmedFrame(sub.Topic, sub.Filters))
}

// heartbeatLoop runs the two-cycle liveness test: a connection that fails
// to pong between two ticks is closed with 1001.
func (g *Gateway) heartbeatLoop() {
	interval := g.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.heartbeatTick()
		case <-g.heartbeatStop:
			return
		}
	}
}

func (g *Gateway) heartbeatTick() {
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		if !c.Alive() {
			logging.Info("heartbeat timeout",
				zap.String("connection_id", c.ID),
				zap.String("user_id", c.Principal.ID),
			)
			c.Terminate(websocket.CloseGoingAway)
			g.remove(c)
			continue
		}
		c.expectPong()
		if err := c.sendPing(); err != nil {
			c.Terminate(websocket.CloseGoingAway)
			g.remove(c)
		}
	}
}

// DeliverData enqueues a subscription_data frame, counting drops by topic.
func (g *Gateway) DeliverData(c *Connection, topic bus.Topic, payload map[string]interface{}, ts time.Time) bool {
	ok := c.Enqueue(SubscriptionDataFrame(topic, payload, ts))
	if ok && g.metrics != nil {
		g.metrics.MessagesSentTotal.WithLabelValues(string(topic)).Inc()
	}
	return ok
}
