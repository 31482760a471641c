package session

import "sync"

// mailbox is an unbounded FIFO queue with a single consumer. Producers never
// block, so connections and timer callbacks can always hand work to a session.
type mailbox struct {
	mu     sync.Mutex
	queue  []any
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// push appends msg and reports false if the mailbox is closed
func (m *mailbox) push(msg any) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// ready fires when at least one message may be waiting
func (m *mailbox) ready() <-chan struct{} {
	return m.notify
}

// drain takes every queued message in arrival order
func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.queue
	m.queue = nil
	return batch
}

// close rejects further pushes and discards anything still queued
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
}
