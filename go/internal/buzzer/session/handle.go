package session

import "github.com/mcdev12/buzzer/go/internal/buzzer/wire"

// Handle is the session's view of one participant's connection.
//
// Deliver must not block: it either queues the notification for the
// transport or drops it when the transport is already gone. Implementations
// must be comparable (pointer types), because a session may have to find a
// participant by its handle.
type Handle interface {
	Deliver(n wire.Notification)
}

// Intent is one client message tagged with its sender. Handle is required for
// Connect and is used to identify the sender of Disconnect when From is not
// known yet.
type Intent struct {
	From    uint64
	Handle  Handle
	Message wire.ClientMessage
}
