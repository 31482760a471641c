package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
)

const waitTimeout = 2 * time.Second

// recorder is a Handle that keeps every notification it receives
type recorder struct {
	ch chan wire.Notification
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan wire.Notification, 256)}
}

func (r *recorder) Deliver(n wire.Notification) {
	r.ch <- n
}

func (r *recorder) next(t *testing.T) wire.Notification {
	t.Helper()
	select {
	case n := <-r.ch:
		return n
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for notification")
		return nil
	}
}

func (r *recorder) expect(t *testing.T, want wire.Notification) {
	t.Helper()
	if got := r.next(t); got != want {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

// expectNone must be called after a Snapshot so that every earlier intent
// has already been delivered
func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-r.ch:
		t.Fatalf("expected no notification, got %#v", n)
	default:
	}
}

func (r *recorder) drain() {
	for {
		select {
		case <-r.ch:
		default:
			return
		}
	}
}

type fakeRemover struct {
	mu      sync.Mutex
	deleted []ID
}

func (f *fakeRemover) Delete(id ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemover) calls() []ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ID(nil), f.deleted...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	c         *Coordinator
	clock     *clockwork.FakeClock
	remover   *fakeRemover
	publisher *capturePublisher
}

func newHarness(t *testing.T, name string, timer time.Duration) *harness {
	t.Helper()
	return newBoundedHarness(t, name, timer, 0)
}

// newBoundedHarness caps ChangeSession at maxTimer
func newBoundedHarness(t *testing.T, name string, timer, maxTimer time.Duration) *harness {
	t.Helper()
	h := &harness{
		clock:     clockwork.NewFakeClock(),
		remover:   &fakeRemover{},
		publisher: &capturePublisher{},
	}
	h.c = NewCoordinator(Config{
		ID:        ID(0xabc),
		Name:      name,
		Timer:     timer,
		MaxTimer:  maxTimer,
		Clock:     h.clock,
		Remover:   h.remover,
		Publisher: h.publisher,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.c.Start(ctx)
	return h
}

func (h *harness) send(t *testing.T, from uint64, msg wire.ClientMessage) {
	t.Helper()
	if err := h.c.Send(Intent{From: from, Message: msg}); err != nil {
		t.Fatalf("send %T: %v", msg, err)
	}
}

// join connects a new participant and returns its handle and the private
// snapshot it received. Roster replay and the join broadcast are consumed.
func (h *harness) join(t *testing.T) (*recorder, wire.ConnectionSuccess) {
	t.Helper()
	r := newRecorder()
	if err := h.c.Send(Intent{Handle: r, Message: wire.Connect{}}); err != nil {
		t.Fatalf("send connect: %v", err)
	}

	cs, ok := r.next(t).(wire.ConnectionSuccess)
	if !ok {
		t.Fatalf("expected ConnectionSuccess first")
	}
	for {
		if n, ok := r.next(t).(wire.Connected); ok && n.ID == cs.ID {
			break
		}
	}
	return r, cs
}

func (h *harness) snapshot(t *testing.T) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	state, err := h.c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	checkTimerMatchesStatus(t, state)
	return state
}

// sync waits for all queued intents and discards what they delivered
func (h *harness) sync(t *testing.T, recorders ...*recorder) {
	t.Helper()
	h.snapshot(t)
	for _, r := range recorders {
		r.drain()
	}
}

func checkTimerMatchesStatus(t *testing.T, s State) {
	t.Helper()
	if s.TimerPending != (s.Status == wire.StatusRunning) {
		t.Fatalf("timer pending=%v while status=%s", s.TimerPending, s.Status)
	}
}
