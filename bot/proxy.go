package bot

import (
	"context"
	"log"
	"sync"

	"github.com/pkg/errors"
	"github.com/zond/juicebot/events"
)

// Proxy attaches script listeners to the shared bus, and detaches exactly those listeners again.
type Proxy struct {
	bus      *events.Bus
	logger   *log.Logger
	inFlight *sync.WaitGroup
}

func NewProxy(bus *events.Bus, logger *log.Logger, inFlight *sync.WaitGroup) *Proxy {
	return &Proxy{
		bus:      bus,
		logger:   logger,
		inFlight: inFlight,
	}
}

// AddListener calls h asynchronously with the payload of every event named event,
// until RemoveAll(s) is called.
func (p *Proxy) AddListener(s *Script, event string, h Handler) (events.Token, error) {
	if event == "" {
		return 0, errors.New("event name is required")
	}
	token := p.bus.On(event, func(ctx context.Context, ev *events.Event) {
		if !s.acquire() {
			return
		}
		p.inFlight.Add(1)
		go func() {
			defer p.inFlight.Done()
			defer s.release()
			if err := h.Call(context.WithoutCancel(ctx), ev.Payload); err != nil {
				p.logger.Printf("script %q failed handling event %q: %v", s.Name, event, err)
			}
		}()
	})
	if !s.addListener(Listener{Event: event, Token: token}) {
		p.bus.Off(event, token)
		return 0, errors.Errorf("script %q is stopped", s.Name)
	}
	return token, nil
}

// RemoveAll detaches every listener s registered, and returns how many were detached.
// Other listeners for the same events are left alone.
func (p *Proxy) RemoveAll(s *Script) int {
	removed := 0
	for _, l := range s.takeListeners() {
		if p.bus.Off(l.Event, l.Token) {
			removed++
		}
	}
	return removed
}
