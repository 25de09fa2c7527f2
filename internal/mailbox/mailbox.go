// Package mailbox provides the per-conversation queue and busy/wake
// scheduling primitive. The busy flag plus the wake/no-op rule is the
// sole mechanism enforcing at-most-one in-flight turn per conversation.
package mailbox

import (
	"sync"

	"sigclaw/internal/models"
)

// Mailbox is a FIFO queue of formatted messages plus a busy flag and a
// single registered wake listener. One exists per conversation, created
// lazily on first message, for the process lifetime.
//
// The caller owns the full protocol: set busy before draining, run the
// turn, set not-busy after, then Wake again to discover messages that
// arrived mid-turn. All state is mutex-guarded; the wake callback must
// not block (the router's callback is a non-blocking channel notify).
type Mailbox struct {
	mu       sync.Mutex
	chatID   string
	convType models.ConversationType
	queue    []models.FormattedMessage
	busy     bool
	onWake   func()
}

// New creates a mailbox for one conversation
func New(chatID string, convType models.ConversationType) *Mailbox {
	return &Mailbox{chatID: chatID, convType: convType}
}

// ChatID returns the conversation id this mailbox serves
func (m *Mailbox) ChatID() string {
	return m.chatID
}

// Type returns the conversation type
func (m *Mailbox) Type() models.ConversationType {
	return m.convType
}

// Enqueue appends a message to the tail of the queue
func (m *Mailbox) Enqueue(msg models.FormattedMessage) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
}

// Drain atomically empties the queue and returns its prior contents in
// arrival order.
func (m *Mailbox) Drain() []models.FormattedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	drained := m.queue
	m.queue = nil
	return drained
}

// Len reports the number of queued messages
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// SetBusy marks a turn as in flight (or finished)
func (m *Mailbox) SetBusy(busy bool) {
	m.mu.Lock()
	m.busy = busy
	m.mu.Unlock()
}

// IsBusy reports whether a turn is in flight
func (m *Mailbox) IsBusy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// OnWake registers the single wake listener, replacing any previous one
func (m *Mailbox) OnWake(callback func()) {
	m.mu.Lock()
	m.onWake = callback
	m.mu.Unlock()
}

// Wake invokes the registered callback iff no turn is in flight and the
// queue is non-empty; otherwise it is a no-op. The eligibility check
// happens under the lock; the callback runs outside it so it may call
// back into the mailbox. A spurious wake is possible if busy flips
// between the check and the call — the consumer must tolerate waking
// with nothing to do.
func (m *Mailbox) Wake() {
	m.mu.Lock()
	eligible := !m.busy && len(m.queue) > 0 && m.onWake != nil
	callback := m.onWake
	m.mu.Unlock()

	if eligible {
		callback()
	}
}
