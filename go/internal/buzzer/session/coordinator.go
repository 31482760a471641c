package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSessionClosed is returned when sending to a session that has terminated
var ErrSessionClosed = errors.New("session closed")

// Close reasons reported in SessionClosed events
const (
	CloseReasonAdminClosed       = "admin_closed"
	CloseReasonAdminDisconnected = "admin_disconnected"
	CloseReasonShutdown          = "shutdown"
	CloseReasonPanic             = "panic"
)

// maxTimerSeconds keeps time.Duration arithmetic from overflowing
const maxTimerSeconds = uint64(math.MaxInt64 / int64(time.Second))

// Remover is what a session needs from the registry to take itself out of it
type Remover interface {
	Delete(id ID) error
}

// Config holds everything needed to build a coordinator
type Config struct {
	ID    ID
	Name  string
	Timer time.Duration

	// MaxTimer bounds ChangeSession; zero means no bound beyond overflow safety
	MaxTimer time.Duration

	// Clock drives the countdown. In production, use clockwork.NewRealClock(). In tests, a FakeClock.
	Clock     clockwork.Clock
	Remover   Remover
	Publisher events.Publisher
}

type participant struct {
	handle Handle
	name   string
}

// timerExpired is the countdown callback re-entering the mailbox. gen ties it
// to the countdown that scheduled it.
type timerExpired struct {
	gen uint64
}

type snapshotRequest struct {
	reply chan State
}

// Coordinator owns one session's state. Every mutation happens on its own
// goroutine, one mailbox message at a time.
type Coordinator struct {
	id        ID
	clock     clockwork.Clock
	remover   Remover
	publisher events.Publisher
	maxTimer  time.Duration
	logger    zerolog.Logger

	inbox *mailbox
	done  chan struct{}

	// Everything below is only touched by the run goroutine
	name         string
	timer        time.Duration
	elapsed      time.Duration
	status       wire.Status
	startedAt    time.Time
	pending      clockwork.Timer
	timerGen     uint64
	blacklist    map[uint64]struct{}
	admin        uint64
	lastID       uint64
	participants map[uint64]*participant
	stopped      bool
}

// NewCoordinator creates a session in the Waiting state. Call Start to run it.
func NewCoordinator(cfg Config) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	maxTimer := cfg.MaxTimer
	if maxTimer <= 0 {
		maxTimer = time.Duration(maxTimerSeconds) * time.Second
	}

	return &Coordinator{
		id:           cfg.ID,
		clock:        clock,
		remover:      cfg.Remover,
		publisher:    cfg.Publisher,
		maxTimer:     maxTimer,
		logger:       log.With().Str("session_id", cfg.ID.String()).Logger(),
		inbox:        newMailbox(),
		done:         make(chan struct{}),
		name:         cfg.Name,
		timer:        cfg.Timer,
		status:       wire.StatusWaiting,
		blacklist:    make(map[uint64]struct{}),
		participants: make(map[uint64]*participant),
	}
}

// ID returns the session identifier
func (c *Coordinator) ID() ID {
	return c.id
}

// Done is closed once the session has terminated
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Start runs the session loop until the session closes itself or ctx is cancelled
func (c *Coordinator) Start(ctx context.Context) {
	go c.run(ctx)
}

// Send queues an intent. It never blocks.
func (c *Coordinator) Send(in Intent) error {
	if in.Message == nil {
		return fmt.Errorf("send intent: missing message")
	}
	if !c.inbox.push(in) {
		return ErrSessionClosed
	}
	return nil
}

// Snapshot returns a copy of the session state, taken between two intents
func (c *Coordinator) Snapshot(ctx context.Context) (State, error) {
	req := snapshotRequest{reply: make(chan State, 1)}
	if !c.inbox.push(req) {
		return State{}, ErrSessionClosed
	}

	select {
	case state := <-req.reply:
		return state, nil
	case <-c.done:
		return State{}, ErrSessionClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	c.logger.Debug().Msg("session started")
	for {
		select {
		case <-ctx.Done():
			c.terminate(CloseReasonShutdown)
			return
		case <-c.inbox.ready():
			for _, msg := range c.inbox.drain() {
				c.dispatch(msg)
				if c.stopped {
					return
				}
			}
		}
	}
}

// dispatch handles one message. A panic ends this session only.
func (c *Coordinator) dispatch(msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("message", fmt.Sprintf("%T", msg)).
				Bytes("stack", debug.Stack()).
				Msg("session handler panicked")
			if !c.stopped {
				c.terminate(CloseReasonPanic)
			}
		}
	}()

	switch m := msg.(type) {
	case Intent:
		c.handleIntent(m)
	case timerExpired:
		c.handleExpiry(m.gen)
	case snapshotRequest:
		m.reply <- c.state()
	default:
		c.logger.Warn().Str("message", fmt.Sprintf("%T", msg)).Msg("unknown mailbox message")
	}
}

func (c *Coordinator) handleIntent(in Intent) {
	c.logger.Debug().
		Uint64("participant_id", in.From).
		Str("intent", string(in.Message.MessageType())).
		Msg("session received intent")

	switch m := in.Message.(type) {
	case wire.Connect:
		c.connect(in.Handle)

	case wire.ChangeName:
		p, ok := c.participants[in.From]
		if !ok {
			c.ignored(in, "unknown participant")
			return
		}
		p.name = m.Name
		c.broadcast(wire.ChangedName{Name: m.Name, ID: in.From})

	case wire.ChangeSession:
		if !c.isAdmin(in.From) || c.status != wire.StatusWaiting {
			c.ignored(in, "requires admin while waiting")
			return
		}
		if m.Timer > maxTimerSeconds || time.Duration(m.Timer)*time.Second > c.maxTimer {
			c.ignored(in, "timer out of range")
			return
		}
		c.name = m.Name
		c.timer = time.Duration(m.Timer) * time.Second
		c.broadcast(wire.Changed{Name: m.Name, Timer: m.Timer})

	case wire.ResumeSession:
		if !c.isAdmin(in.From) || c.status == wire.StatusRunning {
			c.ignored(in, "requires admin while not running")
			return
		}
		c.resume()

	case wire.PauseSession:
		if !c.isAdmin(in.From) || c.status != wire.StatusRunning {
			c.ignored(in, "requires admin while running")
			return
		}
		c.stopRunning()
		c.broadcast(wire.Paused{})

	case wire.ResetSession:
		if !c.isAdmin(in.From) {
			c.ignored(in, "requires admin")
			return
		}
		c.cancelTimer()
		c.reset()

	case wire.ResetBlacklist:
		if !c.isAdmin(in.From) {
			c.ignored(in, "requires admin")
			return
		}
		clear(c.blacklist)
		c.broadcast(wire.BlacklistCleared{})

	case wire.Buzz:
		c.buzz(in)

	case wire.CloseSession:
		if !c.isAdmin(in.From) {
			c.ignored(in, "requires admin")
			return
		}
		c.terminate(CloseReasonAdminClosed)

	case wire.Disconnect:
		c.disconnect(in)

	default:
		c.ignored(in, "unsupported intent")
	}
}

func (c *Coordinator) connect(h Handle) {
	if h == nil {
		c.logger.Warn().Msg("connect without a handle")
		return
	}

	c.lastID++
	id := c.lastID
	if c.admin == 0 {
		c.admin = id
	}

	h.Deliver(wire.ConnectionSuccess{
		ID:      id,
		IsAdmin: c.admin == id,
		Name:    c.name,
		Timer:   uint64(c.timer / time.Second),
		Elapsed: millis(c.currentElapsed(c.clock.Now())),
		Status:  c.status,
	})
	for _, p := range c.roster() {
		h.Deliver(wire.Connected{Name: p.Name, ID: p.ID})
	}

	name := fmt.Sprintf("user%d", id)
	c.participants[id] = &participant{handle: h, name: name}
	c.broadcast(wire.Connected{Name: name, ID: id})

	c.logger.Info().
		Uint64("participant_id", id).
		Bool("is_admin", c.admin == id).
		Int("participants", len(c.participants)).
		Msg("participant connected")
}

func (c *Coordinator) buzz(in Intent) {
	if c.status != wire.StatusRunning {
		c.ignored(in, "not running")
		return
	}
	if _, ok := c.participants[in.From]; !ok {
		c.ignored(in, "unknown participant")
		return
	}
	if _, done := c.blacklist[in.From]; done {
		c.ignored(in, "already buzzed this cycle")
		return
	}

	c.blacklist[in.From] = struct{}{}
	c.stopRunning()
	c.broadcast(wire.Buzzed{ID: in.From})

	c.emit(events.EventTypeBuzzAccepted, events.BuzzAcceptedPayload{
		ParticipantID: in.From,
		ElapsedMs:     millis(c.elapsed),
	})
}

func (c *Coordinator) disconnect(in Intent) {
	id, ok := c.resolve(in)
	if !ok {
		c.ignored(in, "unknown participant")
		return
	}

	delete(c.participants, id)
	if id == c.admin {
		c.terminate(CloseReasonAdminDisconnected)
		return
	}

	c.broadcast(wire.Disconnected{ID: id})
	c.logger.Info().
		Uint64("participant_id", id).
		Int("participants", len(c.participants)).
		Msg("participant disconnected")
}

// resolve finds the sender by id, falling back to its handle for connections
// that left before learning their id
func (c *Coordinator) resolve(in Intent) (uint64, bool) {
	if _, ok := c.participants[in.From]; ok && in.From != 0 {
		return in.From, true
	}
	if in.Handle == nil {
		return 0, false
	}
	for id, p := range c.participants {
		if p.handle == in.Handle {
			return id, true
		}
	}
	return 0, false
}

func (c *Coordinator) handleExpiry(gen uint64) {
	if gen != c.timerGen || c.status != wire.StatusRunning {
		c.logger.Debug().Uint64("gen", gen).Msg("ignoring stale countdown expiry")
		return
	}

	c.pending = nil
	c.reset()
	c.emit(events.EventTypeCountdownExpired, events.CountdownExpiredPayload{
		TimerSec: uint64(c.timer / time.Second),
	})
}

// reset recycles the session into Waiting. The caller cancels the timer.
func (c *Coordinator) reset() {
	clear(c.blacklist)
	c.elapsed = 0
	c.status = wire.StatusWaiting
	c.broadcast(wire.Reset{})
}

// terminate broadcasts Closed, leaves the registry and stops the loop
func (c *Coordinator) terminate(reason string) {
	c.cancelTimer()
	c.broadcast(wire.Closed{})
	c.inbox.close()
	c.stopped = true

	if c.remover != nil {
		if err := c.remover.Delete(c.id); err != nil {
			c.logger.Debug().Err(err).Msg("session already removed from registry")
		}
	}

	c.emit(events.EventTypeSessionClosed, events.SessionClosedPayload{
		Reason:       reason,
		Participants: len(c.participants),
	})
	c.logger.Info().Str("reason", reason).Msg("session closed")
}

// broadcast fans a notification out to every participant. Handles never block.
func (c *Coordinator) broadcast(n wire.Notification) {
	for _, p := range c.participants {
		p.handle.Deliver(n)
	}
	c.logger.Debug().
		Str("notification", string(n.NotificationType())).
		Int("participants", len(c.participants)).
		Msg("notification broadcasted")
}

func (c *Coordinator) isAdmin(from uint64) bool {
	return from != 0 && from == c.admin
}

func (c *Coordinator) ignored(in Intent, reason string) {
	c.logger.Debug().
		Uint64("participant_id", in.From).
		Str("intent", string(in.Message.MessageType())).
		Str("reason", reason).
		Msg("intent ignored")
}

func (c *Coordinator) emit(eventType events.EventType, payload any) {
	events.Emit(context.Background(), c.publisher, eventType, c.id.String(), c.clock.Now(), payload)
}

func millis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}
