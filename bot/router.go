package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/zond/juicebot"
	"github.com/zond/juicebot/chat"
)

// Policy decides which scripts get a trigger that several of them registered.
type Policy int

const (
	// FireAll invokes the handlers of every matching script.
	FireAll Policy = iota
	// FirstWins only invokes the handlers of the first matching script, by name.
	FirstWins
)

// Request is one inbound command addressed to the bot.
type Request struct {
	Message    *chat.Message
	Trigger    string
	Args       chat.Args
	Privileged bool
}

// ReservedCommand is a privileged command whose triggers no script may claim.
type ReservedCommand struct {
	Names       []string
	Params      string
	Description string
	Run         func(ctx context.Context, req *Request) error
}

func (r *ReservedCommand) Usage(mention string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", mention, r.Names[0], r.Params))
}

type Router struct {
	reserved map[string]*ReservedCommand
	ordered  []*ReservedCommand
	running  *RunningSet
	policy   Policy
	logger   *log.Logger
	fail     func(ctx context.Context, text string)
	inFlight *sync.WaitGroup
}

// NewRouter returns a router with the given reserved table. Two reserved commands sharing a trigger is an error.
func NewRouter(reserved []*ReservedCommand, running *RunningSet, policy Policy, logger *log.Logger, inFlight *sync.WaitGroup, fail func(ctx context.Context, text string)) (*Router, error) {
	r := &Router{
		reserved: map[string]*ReservedCommand{},
		ordered:  reserved,
		running:  running,
		policy:   policy,
		logger:   logger,
		fail:     fail,
		inFlight: inFlight,
	}
	for _, cmd := range reserved {
		if len(cmd.Names) == 0 {
			return nil, errors.Errorf("reserved command %q has no triggers", cmd.Description)
		}
		for _, name := range cmd.Names {
			if prev, found := r.reserved[name]; found {
				return nil, errors.Errorf("reserved trigger %q registered by both %q and %q", name, prev.Names[0], cmd.Names[0])
			}
			r.reserved[name] = cmd
		}
	}
	return r, nil
}

func (r *Router) IsReserved(trigger string) bool {
	_, found := r.reserved[trigger]
	return found
}

// Reserved returns the reserved command for trigger, if any.
func (r *Router) Reserved(trigger string) (*ReservedCommand, bool) {
	cmd, found := r.reserved[trigger]
	return cmd, found
}

// ReservedCommands returns the reserved commands in the order they were registered.
func (r *Router) ReservedCommands() []*ReservedCommand {
	return append([]*ReservedCommand{}, r.ordered...)
}

// Collides returns whether any of triggers is reserved.
func (r *Router) Collides(triggers []string) bool {
	for _, trigger := range triggers {
		if r.IsReserved(strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

// RegisterCommand adds a command owned by s. If any trigger is reserved, or s is
// already stopped, it returns false and s is left untouched.
func (r *Router) RegisterCommand(s *Script, triggers []string, h Handler) bool {
	if len(triggers) == 0 {
		return false
	}
	if r.Collides(triggers) {
		return false
	}
	normalized := make([]string, len(triggers))
	for i, trigger := range triggers {
		if normalized[i] = strings.ToLower(trigger); normalized[i] == "" {
			return false
		}
	}
	return s.addCommand(&Command{Triggers: normalized, Handler: h})
}

// Dispatch routes req, and returns the number of handlers started.
// Privileged requests for reserved triggers go to exactly that reserved command.
// Everything else goes to the matching commands of the running scripts, each
// in its own goroutine, with failures logged and reported without affecting the others.
func (r *Router) Dispatch(ctx context.Context, req *Request) int {
	ctx = context.WithoutCancel(ctx)
	if req.Privileged {
		if cmd, found := r.reserved[req.Trigger]; found {
			r.inFlight.Add(1)
			go func() {
				defer r.inFlight.Done()
				if err := cmd.Run(ctx, req); err != nil {
					r.logger.Printf("%q failed: %v\n%s", req.Trigger, err, juicebot.StackTrace(err))
					r.fail(ctx, fmt.Sprintf("Command %s failed. Error has been logged.", req.Trigger))
				}
			}()
			return 1
		}
	}
	fired := 0
	for _, s := range r.running.Scripts() {
		handlers := s.Handlers(req.Trigger)
		if len(handlers) == 0 {
			continue
		}
		for _, h := range handlers {
			if !s.acquire() {
				break
			}
			fired++
			r.inFlight.Add(1)
			go func() {
				defer r.inFlight.Done()
				defer s.release()
				if err := h.Call(ctx, req.Message, req.Args.Words); err != nil {
					r.logger.Printf("script %q failed handling %q: %v", s.Name, req.Trigger, err)
					r.fail(ctx, fmt.Sprintf("Script %s failed handling %s. Error has been logged.", s.Name, req.Trigger))
				}
			}()
		}
		if r.policy == FirstWins {
			break
		}
	}
	return fired
}
