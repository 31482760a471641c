package gateway

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
)

type recordingSender struct {
	mu      sync.Mutex
	intents []session.Intent
}

func (s *recordingSender) Send(in session.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, in)
	return nil
}

func newTestConnection(buffer int, sender SessionSender) *Connection {
	cfg := DefaultConnectionConfig()
	cfg.SendBufferSize = buffer
	return &Connection{
		ID:      "test",
		Manager: NewConnectionManager(cfg),
		session: sender,
		send:    make(chan []byte, buffer),
	}
}

func TestConnection_DeliverRecordsParticipantID(t *testing.T) {
	c := newTestConnection(4, &recordingSender{})

	c.Deliver(wire.ConnectionSuccess{ID: 7, Name: "Quiz", Timer: 30, Status: wire.StatusWaiting})

	if c.ParticipantID() != 7 {
		t.Errorf("expected participant id 7, got %d", c.ParticipantID())
	}
	if len(c.send) != 1 {
		t.Errorf("expected one queued frame, got %d", len(c.send))
	}
}

func TestConnection_FullBufferCloses(t *testing.T) {
	c := newTestConnection(1, &recordingSender{})

	c.Deliver(wire.Paused{})
	c.Deliver(wire.Reset{})
	c.Deliver(wire.BlacklistCleared{})

	if !c.closed {
		t.Fatal("expected connection to close when its buffer is full")
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("expected the first frame to stay queued")
	}
	if _, ok := <-c.send; ok {
		t.Error("expected no frames after the overflow")
	}
}

func TestConnection_ClosedFlushesThenCloses(t *testing.T) {
	c := newTestConnection(4, &recordingSender{})

	c.Deliver(wire.Closed{})
	c.Deliver(wire.Reset{})

	frame, ok := <-c.send
	if !ok {
		t.Fatal("expected Closed to be queued")
	}
	n, err := wire.DecodeNotification(frame)
	if err != nil || n != (wire.Closed{}) {
		t.Fatalf("expected Closed frame, got %s (%v)", frame, err)
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed after Closed")
	}
}

func TestConnection_LeaveReportsOnce(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(4, sender)

	// never joined: nothing to report
	c.leave()
	if len(sender.intents) != 0 {
		t.Fatalf("expected no intents before join, got %d", len(sender.intents))
	}

	sender2 := &recordingSender{}
	joined := newTestConnection(4, sender2)
	if !joined.handleClientMessage([]byte(`{"type":"Connect"}`)) {
		t.Fatal("connect should keep the connection open")
	}
	joined.handleClientMessage([]byte(`{"type":"Connect"}`))
	if joined.handleClientMessage([]byte(`{"type":"Disconnected"}`)) {
		t.Error("disconnect should end the read loop")
	}
	joined.leave()

	if len(sender2.intents) != 2 {
		t.Fatalf("expected Connect and one Disconnect, got %d intents", len(sender2.intents))
	}
	if _, ok := sender2.intents[0].Message.(wire.Connect); !ok {
		t.Errorf("expected Connect first, got %T", sender2.intents[0].Message)
	}
	last := sender2.intents[1]
	if _, ok := last.Message.(wire.Disconnect); !ok {
		t.Errorf("expected Disconnect, got %T", last.Message)
	}
	if last.Handle != joined || last.From != 0 {
		t.Errorf("expected the disconnect to carry the handle before the id is known, got %+v", last)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no list allows all", allowed: nil, origin: "https://evil.example", want: true},
		{name: "wildcard allows all", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "listed origin", allowed: []string{"https://quiz.example"}, origin: "https://quiz.example", want: true},
		{name: "unlisted origin", allowed: []string{"https://quiz.example"}, origin: "https://evil.example", want: false},
		{name: "no origin header", allowed: []string{"https://quiz.example"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/session/1/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
