// Package events contains the bus every platform event travels on.
//
// Listeners are identified by the Token returned when they were added, and
// removal takes the same Token, so removing one listener never disturbs any
// other listener for the same event name.
package events

import (
	"context"
	"sync"

	"github.com/zond/juicebot"
)

const (
	Message  = "message"
	Reaction = "reaction"
	Join     = "join"
	Leave    = "leave"
)

type Token uint64

type Event struct {
	Name    string
	Payload any
}

type Listener func(ctx context.Context, ev *Event)

type entry struct {
	token    Token
	listener Listener
}

type Bus struct {
	mutex     sync.RWMutex
	listeners map[string][]entry
	lastToken uint64
}

func NewBus() *Bus {
	return &Bus{
		listeners: map[string][]entry{},
	}
}

// On attaches listener to name and returns the token needed to detach it.
func (b *Bus) On(name string, listener Listener) Token {
	token := Token(juicebot.Increment(&b.lastToken))
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.listeners[name] = append(b.listeners[name], entry{token: token, listener: listener})
	return token
}

// Off detaches exactly the listener added under token for name.
// Returns false if no such pairing exists.
func (b *Bus) Off(name string, token Token) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	entries := b.listeners[name]
	for idx, e := range entries {
		if e.token == token {
			remaining := make([]entry, 0, len(entries)-1)
			remaining = append(remaining, entries[:idx]...)
			remaining = append(remaining, entries[idx+1:]...)
			if len(remaining) == 0 {
				delete(b.listeners, name)
			} else {
				b.listeners[name] = remaining
			}
			return true
		}
	}
	return false
}

func (b *Bus) Count(name string) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.listeners[name])
}

// Emit calls every listener of name, in the order they were added, and returns
// how many were called. Listeners run on the calling goroutine and must not block.
func (b *Bus) Emit(ctx context.Context, name string, payload any) int {
	b.mutex.RLock()
	entries := b.listeners[name]
	b.mutex.RUnlock()
	ev := &Event{Name: name, Payload: payload}
	for _, e := range entries {
		e.listener(ctx, ev)
	}
	return len(entries)
}
