package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devpulse/gateway/internal/auth"
)

// wsPair upgrades one connection through an httptest server and returns
// both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverSide:
	case <-time.After(time.Second):
		t.Fatal("server side never arrived")
	}
	return server, client
}

func testPrincipal(role auth.Role) *auth.Principal {
	return &auth.Principal{
		ID:     "u1",
		Name:   "Dev One",
		Role:   role,
		Active: true,
	}
}

func TestEnqueueDropNewestWhenFull(t *testing.T) {
	server, client := wsPair(t)
	c := newConnection("c1", testPrincipal(auth.RoleDeveloper), server, 2, false, time.Second)

	// No writePump running yet, so the queue fills.
	if !c.Enqueue([]byte("one")) || !c.Enqueue([]byte("two")) {
		t.Fatal("first two frames should be accepted")
	}
	if c.Enqueue([]byte("three")) {
		t.Error("frame beyond queue capacity should be dropped")
	}
	if c.Drops() != 1 {
		t.Errorf("expected 1 drop, got %d", c.Drops())
	}
	if c.Closing() {
		t.Error("drop-newest must not close the connection")
	}

	// The queued frames survive the overflow.
	go c.writePump()
	for _, want := range []string{"one", "two"} {
		_, msg, err := readWithDeadline(t, client)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(msg) != want {
			t.Errorf("expected %q, got %q", want, msg)
		}
	}
	c.Terminate(websocket.CloseGoingAway)
}

func readWithDeadline(t *testing.T, ws *websocket.Conn) (int, []byte, error) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(time.Second))
	return ws.ReadMessage()
}

func TestWritePumpDeliversInOrder(t *testing.T) {
	server, client := wsPair(t)
	c := newConnection("c1", testPrincipal(auth.RoleDeveloper), server, 8, false, time.Second)
	c.Enqueue([]byte("first"))
	c.Enqueue([]byte("second"))
	go c.writePump()

	for _, want := range []string{"first", "second"} {
		_, msg, err := readWithDeadline(t, client)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(msg) != want {
			t.Errorf("expected %q, got %q", want, msg)
		}
	}
	c.Terminate(websocket.CloseGoingAway)
}

func TestStrictBackpressureTerminates(t *testing.T) {
	server, client := wsPair(t)
	c := newConnection("c1", testPrincipal(auth.RoleDeveloper), server, 1, true, time.Second)

	var deadCode int
	c.onDead = func(code int) { deadCode = code }

	c.Enqueue([]byte("one"))
	if c.Enqueue([]byte("two")) {
		t.Error("overflow in strict mode should be rejected")
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("strict overflow should terminate the connection")
	}
	if deadCode != websocket.CloseInternalServerErr {
		t.Errorf("expected close code 1011, got %d", deadCode)
	}
	if c.Enqueue([]byte("after")) {
		t.Error("closed connection must reject frames")
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	if ce, ok := err.(*websocket.CloseError); !ok || ce.Code != websocket.CloseInternalServerErr {
		t.Errorf("client should observe close 1011, got %v", err)
	}
}

func TestTerminateIdempotent(t *testing.T) {
	server, _ := wsPair(t)
	c := newConnection("c1", testPrincipal(auth.RoleDeveloper), server, 1, false, time.Second)

	calls := 0
	c.onDead = func(int) { calls++ }

	c.Terminate(websocket.CloseGoingAway)
	c.Terminate(websocket.CloseInternalServerErr)

	if calls != 1 {
		t.Errorf("onDead should fire once, got %d", calls)
	}
	if !c.Closing() {
		t.Error("terminated connection should report closing")
	}
}

func TestHeartbeatAccounting(t *testing.T) {
	server, _ := wsPair(t)
	c := newConnection("c1", testPrincipal(auth.RoleDeveloper), server, 1, false, time.Second)

	if !c.Alive() {
		t.Error("new connection starts alive")
	}
	c.expectPong()
	if c.Alive() {
		t.Error("expectPong should clear liveness")
	}
	c.markAlive()
	if !c.Alive() {
		t.Error("markAlive should restore liveness")
	}
}
