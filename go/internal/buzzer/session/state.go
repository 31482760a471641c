package session

import (
	"slices"
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
)

// ParticipantInfo describes one roster entry
type ParticipantInfo struct {
	ID   uint64
	Name string
}

// State is a point-in-time copy of a session
type State struct {
	ID           ID
	Name         string
	Timer        time.Duration
	Elapsed      time.Duration
	Status       wire.Status
	AdminID      uint64
	Blacklist    []uint64
	Participants []ParticipantInfo
	TimerPending bool
}

func (c *Coordinator) state() State {
	blacklist := make([]uint64, 0, len(c.blacklist))
	for id := range c.blacklist {
		blacklist = append(blacklist, id)
	}
	slices.Sort(blacklist)

	return State{
		ID:           c.id,
		Name:         c.name,
		Timer:        c.timer,
		Elapsed:      c.currentElapsed(c.clock.Now()),
		Status:       c.status,
		AdminID:      c.admin,
		Blacklist:    blacklist,
		Participants: c.roster(),
		TimerPending: c.pending != nil,
	}
}

// roster lists participants ordered by id
func (c *Coordinator) roster() []ParticipantInfo {
	out := make([]ParticipantInfo, 0, len(c.participants))
	for id, p := range c.participants {
		out = append(out, ParticipantInfo{ID: id, Name: p.name})
	}
	slices.SortFunc(out, func(a, b ParticipantInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}
