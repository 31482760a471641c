package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when no live session has the requested id
	ErrNotFound = errors.New("session not found")
	// ErrAllocationExhausted is returned when no free id was found in maxDraws attempts
	ErrAllocationExhausted = errors.New("session id space exhausted")
)

const maxDraws = 64

// Config holds registry dependencies. Zero values fall back to production defaults.
type Config struct {
	// MaxTimer bounds the countdown a session can be reconfigured to
	MaxTimer  time.Duration
	Clock     clockwork.Clock
	Publisher events.Publisher
	// IDSource draws candidate session ids; defaults to math/rand/v2
	IDSource func() uint64
}

// Registry maps session ids to running coordinators
type Registry struct {
	sessions map[session.ID]*session.Coordinator
	mu       sync.RWMutex

	ctx       context.Context
	maxTimer  time.Duration
	clock     clockwork.Clock
	publisher events.Publisher
	draw      func() uint64
}

// New creates a registry. Sessions it creates stop when ctx is cancelled.
func New(ctx context.Context, cfg Config) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	draw := cfg.IDSource
	if draw == nil {
		draw = rand.Uint64
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher()
	}

	return &Registry{
		sessions:  make(map[session.ID]*session.Coordinator),
		ctx:       ctx,
		maxTimer:  cfg.MaxTimer,
		clock:     clock,
		publisher: publisher,
		draw:      draw,
	}
}

// Create starts a new session in the Waiting state and returns its id
func (r *Registry) Create(name string, timerSeconds uint64) (session.ID, error) {
	r.mu.Lock()
	id, err := r.allocate()
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}

	coordinator := session.NewCoordinator(session.Config{
		ID:        id,
		Name:      name,
		Timer:     time.Duration(timerSeconds) * time.Second,
		MaxTimer:  r.maxTimer,
		Clock:     r.clock,
		Remover:   r,
		Publisher: r.publisher,
	})
	r.sessions[id] = coordinator
	r.mu.Unlock()

	coordinator.Start(r.ctx)

	log.Info().
		Str("session_id", id.String()).
		Str("name", name).
		Uint64("timer_sec", timerSeconds).
		Msg("session created")
	events.Emit(r.ctx, r.publisher, events.EventTypeSessionCreated, id.String(), r.clock.Now(), events.SessionCreatedPayload{
		Name:     name,
		TimerSec: timerSeconds,
	})

	return id, nil
}

// allocate draws until it finds an unused non-zero id. Caller holds r.mu.
func (r *Registry) allocate() (session.ID, error) {
	for i := 0; i < maxDraws; i++ {
		id := session.ID(r.draw())
		if id == 0 {
			continue
		}
		if _, taken := r.sessions[id]; !taken {
			return id, nil
		}
	}
	return 0, fmt.Errorf("after %d draws: %w", maxDraws, ErrAllocationExhausted)
}

// Lookup returns the coordinator for id
func (r *Registry) Lookup(id session.ID) (*session.Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coordinator, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", id, ErrNotFound)
	}
	return coordinator, nil
}

// Delete removes id from the registry. Sessions call it when they terminate.
func (r *Registry) Delete(id session.ID) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	log.Info().Str("session_id", id.String()).Msg("session removed")
	events.Emit(r.ctx, r.publisher, events.EventTypeSessionDeleted, id.String(), r.clock.Now(), nil)
	return nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Wait blocks until every session that is live when it is called has
// terminated, or ctx ends. After the registry's context is cancelled it
// returns once the sessions have published their close events.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.RLock()
	live := make([]*session.Coordinator, 0, len(r.sessions))
	for _, coordinator := range r.sessions {
		live = append(live, coordinator)
	}
	r.mu.RUnlock()

	for _, coordinator := range live {
		select {
		case <-coordinator.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d sessions: %w", len(live), ctx.Err())
		}
	}
	return nil
}
