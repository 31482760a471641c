package session

import (
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
)

// resume starts a countdown for whatever time is left in the current cycle
func (c *Coordinator) resume() {
	now := c.clock.Now()
	remaining := c.timer - c.elapsed
	if remaining < 0 {
		remaining = 0
	}

	c.status = wire.StatusRunning
	c.startedAt = now
	c.schedule(remaining)
	c.broadcast(wire.Resumed{Left: millis(remaining)})

	c.logger.Debug().Dur("remaining", remaining).Msg("countdown resumed")
}

// stopRunning ends the running interval: the timer is cancelled, elapsed time
// is banked and the session is Paused
func (c *Coordinator) stopRunning() {
	c.cancelTimer()
	c.elapsed = c.currentElapsed(c.clock.Now())
	c.status = wire.StatusPaused
}

// schedule arms a one-shot timer that posts timerExpired back into the mailbox
func (c *Coordinator) schedule(d time.Duration) {
	c.cancelTimer()
	gen := c.timerGen
	c.pending = c.clock.AfterFunc(d, func() {
		c.inbox.push(timerExpired{gen: gen})
	})
}

// cancelTimer stops any pending countdown. Bumping the generation turns an
// expiry already sitting in the mailbox into a no-op.
func (c *Coordinator) cancelTimer() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.timerGen++
}

// currentElapsed is the banked elapsed time plus the running interval, capped
// at the timer length
func (c *Coordinator) currentElapsed(now time.Time) time.Duration {
	elapsed := c.elapsed
	if c.status == wire.StatusRunning {
		elapsed += now.Sub(c.startedAt)
	}
	if elapsed > c.timer {
		elapsed = c.timer
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}
