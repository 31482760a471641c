package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of session lifecycle event
type EventType string

const (
	EventTypeSessionCreated   EventType = "SessionCreated"
	EventTypeSessionDeleted   EventType = "SessionDeleted"
	EventTypeSessionClosed    EventType = "SessionClosed"
	EventTypeBuzzAccepted     EventType = "BuzzAccepted"
	EventTypeCountdownExpired EventType = "CountdownExpired"
)

// Event is the envelope published for every lifecycle event
type Event struct {
	ID        string          `json:"eventId"`
	Type      EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SessionCreatedPayload is the payload for a SessionCreated event
type SessionCreatedPayload struct {
	Name     string `json:"name"`
	TimerSec uint64 `json:"timer_sec"`
}

// SessionClosedPayload is the payload for a SessionClosed event
type SessionClosedPayload struct {
	Reason       string `json:"reason"`
	Participants int    `json:"participants"`
}

// BuzzAcceptedPayload is the payload for a BuzzAccepted event
type BuzzAcceptedPayload struct {
	ParticipantID uint64 `json:"participant_id"`
	ElapsedMs     uint64 `json:"elapsed_ms"`
}

// CountdownExpiredPayload is the payload for a CountdownExpired event
type CountdownExpiredPayload struct {
	TimerSec uint64 `json:"timer_sec"`
}

// New builds an event with a fresh id. payload may be nil.
func New(eventType EventType, sessionID string, at time.Time, payload any) (Event, error) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: at.UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		event.Payload = data
	}
	return event, nil
}

// Publisher delivers lifecycle events to an external sink. Implementations
// must not block the caller for long; sessions publish from their own loop.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher only logs events. It is the default when no broker is configured.
type LogPublisher struct{}

// NewLogPublisher creates a publisher that writes events to the debug log
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Msg("publishing event")
	return nil
}

// Emit builds and publishes an event, logging instead of returning failures.
// Lifecycle events are informational and never affect a session.
func Emit(ctx context.Context, p Publisher, eventType EventType, sessionID string, at time.Time, payload any) {
	if p == nil {
		return
	}
	event, err := New(eventType, sessionID, at, payload)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to build event")
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_type", string(eventType)).
			Str("session_id", sessionID).
			Msg("failed to publish event")
	}
}
