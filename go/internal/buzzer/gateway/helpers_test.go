package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/config"
	"github.com/mcdev12/buzzer/go/internal/buzzer/registry"
	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
)

const waitTimeout = 2 * time.Second

type testServer struct {
	*httptest.Server
	registry *registry.Registry
	service  *Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := config.Default()
	cfg.Session.MaxTimerSeconds = 600
	cfg.Session.MaxNameLength = 16

	reg := registry.New(ctx, registry.Config{
		MaxTimer: cfg.MaxTimer(),
		Clock:    clockwork.NewFakeClock(),
	})
	svc := NewService(&cfg, reg)
	srv := httptest.NewServer(svc.Handler())

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{Server: srv, registry: reg, service: svc}
}

// get issues a GET without following redirects
func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(s.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) createSession(t *testing.T, name string, timer int) session.ID {
	t.Helper()
	resp := s.get(t, "/create?name="+name+"&timer="+strconv.Itoa(timer))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 from create, got %d", resp.StatusCode)
	}
	id, err := session.ParseID(strings.TrimPrefix(resp.Header.Get("Location"), "/session/"))
	if err != nil {
		t.Fatalf("unexpected redirect %q: %v", resp.Header.Get("Location"), err)
	}
	return id
}

func (s *testServer) info(t *testing.T, id session.ID) SessionInfoResponse {
	t.Helper()
	resp := s.get(t, "/session/"+id.String())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from session info, got %d", resp.StatusCode)
	}
	var info SessionInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode session info: %v", err)
	}
	return info
}

func (s *testServer) dial(t *testing.T, id session.ID) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/session/" + id.String() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn}
}

// client is the test side of one participant websocket
type client struct {
	conn *websocket.Conn
}

func (c *client) send(t *testing.T, msg wire.ClientMessage) {
	t.Helper()
	data, err := wire.EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("encode %T: %v", msg, err)
	}
	c.sendRaw(t, websocket.TextMessage, data)
}

func (c *client) sendRaw(t *testing.T, messageType int, data []byte) {
	t.Helper()
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *client) next(t *testing.T) wire.Notification {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	n, err := wire.DecodeNotification(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return n
}

func (c *client) expect(t *testing.T, want wire.Notification) {
	t.Helper()
	if got := c.next(t); got != want {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

// expectClosed waits for the server to hang up normally
func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected close, got frame %s", data)
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

// join sends Connect and consumes everything up to the client's own Connected
func (c *client) join(t *testing.T) wire.ConnectionSuccess {
	t.Helper()
	c.send(t, wire.Connect{})

	cs, ok := c.next(t).(wire.ConnectionSuccess)
	if !ok {
		t.Fatal("expected ConnectionSuccess first")
	}
	for {
		n := c.next(t)
		if connected, ok := n.(wire.Connected); ok && connected.ID == cs.ID {
			return cs
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
