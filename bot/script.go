package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zond/juicebot/events"
	"github.com/zond/juicebot/js"
	"github.com/zond/juicebot/storage"
)

type State int

const (
	Idle State = iota
	Running
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handler is a closure a script registered, callable after the script body has finished.
type Handler interface {
	Call(ctx context.Context, args ...any) error
}

// HandlerFunc lets ordinary functions act as handlers.
type HandlerFunc func(ctx context.Context, args ...any) error

func (h HandlerFunc) Call(ctx context.Context, args ...any) error {
	return h(ctx, args...)
}

type Command struct {
	Triggers []string
	Handler  Handler
}

func (c *Command) Matches(trigger string) bool {
	for _, t := range c.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

type Listener struct {
	Event string
	Token events.Token
}

// Script is a stored script together with the registrations of its latest run.
type Script struct {
	Name    string
	Code    string
	Created time.Time
	Updated time.Time

	mutex     sync.Mutex
	state     State
	commands  []*Command
	listeners []Listener
	machine   *js.Machine
	// active counts handler invocations in flight. The machine is closed when
	// the script is stopped and active drops to zero.
	active int
}

func NewScript(rec *storage.Script) *Script {
	return &Script{
		Name:    rec.Name,
		Code:    rec.Code,
		Created: rec.CreatedAt(),
		Updated: rec.UpdatedAt(),
	}
}

func (s *Script) String() string {
	return fmt.Sprintf("%s (%v)", s.Name, s.State())
}

func (s *Script) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Listening returns whether the script owns at least one command or listener.
func (s *Script) Listening() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.listening()
}

func (s *Script) listening() bool {
	return len(s.commands) > 0 || len(s.listeners) > 0
}

func (s *Script) Commands() []*Command {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]*Command{}, s.commands...)
}

func (s *Script) Listeners() []Listener {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Listener{}, s.listeners...)
}

// Handlers returns the handlers of every command matching trigger, in registration order.
func (s *Script) Handlers(trigger string) []Handler {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := []Handler{}
	for _, cmd := range s.commands {
		if cmd.Matches(trigger) {
			result = append(result, cmd.Handler)
		}
	}
	return result
}

func (s *Script) start(machine *js.Machine) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.machine = machine
	s.state = Running
}

// settle moves the script out of Running after its body finished, and returns
// whether it kept any registrations.
func (s *Script) settle() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listening() {
		s.state = Listening
		return true
	}
	s.state = Stopped
	s.closeIfIdle()
	return false
}

func (s *Script) addCommand(cmd *Command) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == Stopped {
		return false
	}
	s.commands = append(s.commands, cmd)
	return true
}

func (s *Script) addListener(l Listener) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == Stopped {
		return false
	}
	s.listeners = append(s.listeners, l)
	return true
}

// stop clears the commands and refuses new registrations. Listeners stay
// recorded until takeListeners, but no longer get to run.
func (s *Script) stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.commands = nil
	s.state = Stopped
	s.closeIfIdle()
}

func (s *Script) takeListeners() []Listener {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	listeners := s.listeners
	s.listeners = nil
	return listeners
}

// acquire marks a handler invocation as started. It fails once the script is stopped.
func (s *Script) acquire() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == Stopped {
		return false
	}
	s.active++
	return true
}

func (s *Script) release() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.active--
	s.closeIfIdle()
}

func (s *Script) closeIfIdle() {
	if s.state == Stopped && s.active == 0 && s.machine != nil {
		machine := s.machine
		s.machine = nil
		// Close blocks until the isolate is idle, and Stop may be called from inside it.
		go machine.Close()
	}
}
