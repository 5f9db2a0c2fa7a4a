package service

import (
	"sync"
	"time"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the workflow so message expiry can be driven in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// MessageKind tells the UI how to render a message.
type MessageKind string

const (
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
)

// Message is the user-visible status line of a form.
type Message struct {
	Text      string      `json:"text"`
	Kind      MessageKind `json:"kind"`
	Transient bool        `json:"transient"`
}

// Notice holds at most one message. A flashed message clears itself after a
// delay; a set message stays until replaced or cleared. Replacing a message
// always cancels the pending clear of the previous one.
type Notice struct {
	clock Clock

	mu      sync.Mutex
	current *Message
	pending Timer
	gen     uint64
}

// NewNotice creates an empty notice driven by clock.
func NewNotice(clock Clock) *Notice {
	if clock == nil {
		clock = SystemClock
	}
	return &Notice{clock: clock}
}

// Flash shows msg and clears it after d.
func (n *Notice) Flash(msg Message, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	gen := n.replace(msg, true)
	n.pending = n.clock.AfterFunc(d, func() { n.expire(gen) })
}

// Set shows msg until it is replaced or cleared.
func (n *Notice) Set(msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replace(msg, false)
}

// Clear removes the current message.
func (n *Notice) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancel()
	n.gen++
	n.current = nil
}

// Current returns a copy of the visible message, nil when there is none.
func (n *Notice) Current() *Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	msg := *n.current
	return &msg
}

// replace must be called with mu held.
func (n *Notice) replace(msg Message, transient bool) uint64 {
	n.cancel()
	n.gen++
	msg.Transient = transient
	n.current = &msg
	return n.gen
}

func (n *Notice) cancel() {
	if n.pending != nil {
		n.pending.Stop()
		n.pending = nil
	}
}

func (n *Notice) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	// A timer that fired while being stopped must not clear a newer message.
	if n.gen != gen {
		return
	}
	n.current = nil
	n.pending = nil
}
