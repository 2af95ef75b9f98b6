package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/logging"
)

// Connection states.
const (
	stateReady int32 = iota
	stateClosing
	stateClosed
)

// Connection pairs one WebSocket with a single writer goroutine draining a
// bounded FIFO. The writer is the only goroutine that touches the socket
// for data frames.
type Connection struct {
	ID        string
	Principal *auth.Principal

	ws    *websocket.Conn
	send  chan []byte
	state atomic.Int32
	alive atomic.Bool

	strict       bool
	writeTimeout time.Duration

	drops  atomic.Int64
	onDrop func()

	closeOnce sync.Once
	done      chan struct{}

	// onDead is called once when the writer decides the connection is
	// finished (write error or strict-mode overflow).
	onDead func(code int)
}

func newConnection(id string, p *auth.Principal, ws *websocket.Conn, queueSize int, strict bool, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ID:           id,
		Principal:    p,
		ws:           ws,
		send:         make(chan []byte, queueSize),
		strict:       strict,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// Enqueue appends a prepared frame to the outbound FIFO. When the queue is
// full the frame is dropped for this connection only (drop-newest); in
// strict mode the connection is terminated instead. Frames are never
// queued once the connection is closing.
func (c *Connection) Enqueue(frame []byte) bool {
	if c.state.Load() != stateReady {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.drops.Add(1)
		if c.onDrop != nil {
			c.onDrop()
		}
		if c.strict {
			logging.Warn("slow consumer terminated",
				zap.String("connection_id", c.ID),
				zap.String("user_id", c.Principal.ID),
			)
			c.Terminate(websocket.CloseInternalServerErr)
		}
		return false
	}
}

// Drops returns the number of frames dropped for this connection.
func (c *Connection) Drops() int64 {
	return c.drops.Load()
}

// Alive reports whether a pong arrived since the last heartbeat tick.
func (c *Connection) Alive() bool {
	return c.alive.Load()
}

// markAlive is the pong handler's signal.
func (c *Connection) markAlive() {
	c.alive.Store(true)
}

// expectPong arms the two-cycle liveness test.
func (c *Connection) expectPong() {
	c.alive.Store(false)
}

// Closing reports whether the connection has left the READY state.
func (c *Connection) Closing() bool {
	return c.state.Load() != stateReady
}

// Terminate moves the connection to CLOSING, sends the close frame, and
// shuts the socket. Safe to call from any goroutine, exactly-once.
func (c *Connection) Terminate(code int) {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosing)
		deadline := time.Now().Add(c.writeTimeout)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), deadline)
		c.ws.Close()
		c.state.Store(stateClosed)
		close(c.done)
		if c.onDead != nil {
			c.onDead(code)
		}
	})
}

// Done is closed once the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writePump drains the outbound FIFO. Each frame gets its own write
// deadline; a timeout or error terminates the connection with 1011.
func (c *Connection) writePump() {
	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug("write failed, terminating connection",
					zap.String("connection_id", c.ID),
					zap.Error(err),
				)
				c.Terminate(websocket.CloseInternalServerErr)
				return
			}
		case <-c.done:
			return
		}
	}
}

// sendPing emits a protocol-level ping from the heartbeat loop. Control
// frames may be written concurrently with data frames.
func (c *Connection) sendPing() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}
