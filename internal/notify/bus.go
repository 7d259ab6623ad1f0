// Package notify carries session lifecycle notices to live subscribers
// (connected clients waiting for forced-logout pushes). The in-memory bus is
// single-node and non-durable: it loses subscribers on restart and plays no
// part in the correctness of the security state machines. A multi-node
// deployment can swap in a broker-backed Publisher without touching callers.
package notify

import (
	"sync"
	"time"
)

const (
	KindSessionCreated = "session_created"
	KindSessionRevoked = "session_revoked"
	KindForcedLogout   = "forced_logout"
)

type Message struct {
	UserID    string
	SessionID string
	Kind      string
	At        time.Time
}

type Publisher interface {
	Publish(msg Message)
}

// Bus is an in-memory fan-out Publisher keyed by user id.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Message
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Message)}
}

// Subscribe registers a listener for one user's notices. The returned cancel
// func must be called to release the channel.
func (b *Bus) Subscribe(userID string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Message)
	}
	id := b.next
	b.next++
	ch := make(chan Message, 8)
	b.subs[userID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[userID]; ok {
			if c, ok := set[id]; ok {
				delete(set, id)
				close(c)
			}
			if len(set) == 0 {
				delete(b.subs, userID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the message to every subscriber of the user. Slow
// subscribers are skipped rather than blocking the caller.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[msg.UserID] {
		select {
		case ch <- msg:
		default:
		}
	}
}
