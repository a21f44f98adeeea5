// Package bot runs stored scripts and routes chat commands to the handlers they register.
package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juicebot"
	"github.com/zond/juicebot/chat"
	"github.com/zond/juicebot/events"
	"github.com/zond/juicebot/js"
	"github.com/zond/juicebot/storage"
)

const (
	succeedPrefix = "✅: "
	failPrefix    = "❌: "

	evalName = "$eval"
)

// Transport is the chat the bot reads commands from and replies to.
type Transport interface {
	Bus() *events.Bus
	BotName() string
	Mention() string
	Send(ctx context.Context, content string) (*chat.Message, error)
	React(ctx context.Context, messageID string, user string, emoji string) error
	AwaitReaction(ctx context.Context, messageID string, accept func(*chat.Reaction) bool, timeout time.Duration) (*chat.Reaction, error)
}

// Store persists scripts.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Fetch(ctx context.Context, name string) (*storage.Script, error)
	List(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, name string, code string) (bool, error)
	Delete(ctx context.Context, name string) error
}

type Options struct {
	// Operator is the only user allowed to use the reserved commands.
	Operator   string
	RunTimeout time.Duration
	// HandlerTimeout bounds each command handler and listener call. Zero leaves them unbounded.
	HandlerTimeout time.Duration
	ConfirmTimeout time.Duration
	Policy         Policy
	Logger         *log.Logger
	// Storage returns the key/value store of a script. Nil disables `storage`.
	Storage func(script string) js.Storage
	// Shutdown is called after the shutdown command has stopped every script.
	Shutdown func()
}

func (o *Options) defaults() {
	if o.RunTimeout <= 0 {
		o.RunTimeout = js.DefaultTimeout
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

type Bot struct {
	opts      Options
	transport Transport
	store     Store
	running   *RunningSet
	router    *Router
	proxy     *Proxy
	consoles  *Switchboard
	logger    *log.Logger
	started   time.Time

	// runLocks serializes lifecycle changes per script name.
	runLocks *juicebot.SyncMap[string, bool]
	// runMu keeps script bodies from interleaving.
	runMu sync.Mutex
	// dispatchMu keeps routing decisions from interleaving.
	dispatchMu sync.Mutex
	inFlight   sync.WaitGroup
	executions uint64

	listenMu sync.Mutex
	listener *events.Token

	// shutdownMu orders joining the running set against Shutdown.
	shutdownMu   sync.RWMutex
	shuttingDown bool
}

func New(transport Transport, store Store, opts Options) (*Bot, error) {
	opts.defaults()
	b := &Bot{
		opts:      opts,
		transport: transport,
		store:     store,
		running:   NewRunningSet(),
		consoles:  NewSwitchboard(),
		logger:    opts.Logger,
		started:   time.Now(),
		runLocks:  juicebot.NewSyncMap[string, bool](),
	}
	b.proxy = NewProxy(transport.Bus(), b.logger, &b.inFlight)
	var err error
	if b.router, err = NewRouter(b.operatorCommands(), b.running, opts.Policy, b.logger, &b.inFlight, func(ctx context.Context, text string) {
		b.fail(ctx, "%s", text)
	}); err != nil {
		return nil, juicebot.WithStack(err)
	}
	return b, nil
}

func (b *Bot) Running() *RunningSet {
	return b.running
}

func (b *Bot) Router() *Router {
	return b.router
}

func (b *Bot) Consoles() *Switchboard {
	return b.consoles
}

// Executions returns how many script bodies have been executed.
func (b *Bot) Executions() uint64 {
	return atomic.LoadUint64(&b.executions)
}

// Wait blocks until every handler and reserved command started so far has returned.
func (b *Bot) Wait() {
	b.inFlight.Wait()
}

// Start makes the bot react to messages mentioning it.
func (b *Bot) Start() {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	if b.listener != nil {
		return
	}
	token := b.transport.Bus().On(events.Message, b.handleMessage)
	b.listener = &token
}

// Close stops reacting to messages. Running scripts are left alone.
func (b *Bot) Close() {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	if b.listener != nil {
		b.transport.Bus().Off(events.Message, *b.listener)
		b.listener = nil
	}
}

func (b *Bot) handleMessage(ctx context.Context, ev *events.Event) {
	msg, ok := ev.Payload.(*chat.Message)
	if !ok || msg.Bot {
		return
	}
	mention, trigger, args, ok := chat.ParseCommand(msg.Content)
	if !ok || mention != b.transport.Mention() {
		return
	}
	b.Dispatch(ctx, &Request{
		Message:    msg,
		Trigger:    trigger,
		Args:       args,
		Privileged: b.isOperator(msg),
	})
}

// Dispatch routes req and returns the number of handlers started.
func (b *Bot) Dispatch(ctx context.Context, req *Request) int {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	return b.router.Dispatch(ctx, req)
}

func (b *Bot) isOperator(msg *chat.Message) bool {
	return msg != nil && b.opts.Operator != "" && msg.Author == b.opts.Operator
}

func (b *Bot) send(ctx context.Context, text string) {
	if _, err := b.transport.Send(ctx, text); err != nil {
		b.logger.Printf("unable to send %q: %v", text, err)
	}
}

func (b *Bot) succeed(ctx context.Context, format string, args ...any) {
	b.send(ctx, succeedPrefix+fmt.Sprintf(format, args...))
}

func (b *Bot) fail(ctx context.Context, format string, args ...any) {
	b.send(ctx, failPrefix+fmt.Sprintf(format, args...))
}

func (b *Bot) storageFor(name string) js.Storage {
	if b.opts.Storage == nil {
		return nil
	}
	return b.opts.Storage(name)
}

func (b *Bot) execute(ctx context.Context, machine *js.Machine, target *js.Target) (string, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	atomic.AddUint64(&b.executions, 1)
	return machine.Run(ctx, target, b.opts.RunTimeout)
}

type RunResult struct {
	Script    *Script
	Commands  int
	Listeners int
	Value     string
}

// Run executes the stored script name once. If the body registered anything
// the script joins the running set, even if the body later failed.
// A script that registered nothing is done when Run returns.
func (b *Bot) Run(ctx context.Context, name string, msg *chat.Message) (*RunResult, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	b.runLocks.Lock(name)
	defer b.runLocks.Unlock(name)

	if b.isShuttingDown() {
		return nil, errors.Wrapf(ErrShutdown, "script %q", name)
	}
	if b.running.Has(name) {
		return nil, errors.Wrapf(ErrAlreadyRunning, "script %q", name)
	}
	rec, err := b.store.Fetch(ctx, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "script %q", name)
	} else if err != nil {
		return nil, persistence("fetch", err)
	}
	s := NewScript(rec)
	machine, err := js.NewMachine(name, b.opts.HandlerTimeout)
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	s.start(machine)

	value, runErr := b.execute(ctx, machine, &js.Target{
		Source: s.Code,
		Capabilities: &capabilities{
			bot:     b,
			script:  s,
			message: msg,
		},
		Storage: b.storageFor(name),
		Owner:   b.opts.Operator,
		Message: msg,
		Console: b.consoles.Writer(name),
	})
	res := &RunResult{
		Script:    s,
		Commands:  len(s.Commands()),
		Listeners: len(s.Listeners()),
		Value:     value,
	}
	if s.settle() && !b.join(s) {
		return res, errors.Wrapf(ErrShutdown, "script %q", name)
	}
	if runErr != nil {
		b.logger.Printf("script %q failed: %v", name, runErr)
		return res, runErr
	}
	return res, nil
}

func (b *Bot) isShuttingDown() bool {
	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()
	return b.shuttingDown
}

// join adds s to the running set, unless Shutdown has begun, in which case
// the registrations of s are reversed and join returns false.
func (b *Bot) join(s *Script) bool {
	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()
	if b.shuttingDown {
		s.stop()
		b.proxy.RemoveAll(s)
		return false
	}
	b.running.Add(s)
	return true
}

// Eval runs code in a throwaway sandbox without `command` and `proxy`.
// With async the code is the body of an async function, and its resolved value is returned.
func (b *Bot) Eval(ctx context.Context, code string, msg *chat.Message, async bool) (string, error) {
	machine, err := js.NewMachine(evalName, b.opts.HandlerTimeout)
	if err != nil {
		return "", juicebot.WithStack(err)
	}
	defer machine.Close()
	if async {
		code = "(async () => {\n" + code + "\n})()"
	}
	return b.execute(ctx, machine, &js.Target{
		Source: code,
		Capabilities: &capabilities{
			bot:     b,
			message: msg,
		},
		Eval:    true,
		Storage: b.storageFor(evalName),
		Owner:   b.opts.Operator,
		Message: msg,
		Console: b.consoles.Writer(evalName),
	})
}

// Stop reverses every registration of the running script name.
// It returns false, and does nothing, if name isn't running.
// Handlers already in flight are not interrupted.
func (b *Bot) Stop(name string) bool {
	b.runLocks.Lock(name)
	defer b.runLocks.Unlock(name)
	s, found := b.running.Get(name)
	if !found {
		return false
	}
	b.stop(s)
	return true
}

func (b *Bot) stop(s *Script) {
	s.stop()
	b.proxy.RemoveAll(s)
	b.running.Remove(s)
}

// StopAll stops every running script and returns their names.
func (b *Bot) StopAll() []string {
	stopped := []string{}
	for _, name := range b.running.Names() {
		if b.Stop(name) {
			stopped = append(stopped, name)
		}
	}
	return stopped
}

// Reload stops every running script and runs them again with their stored code.
func (b *Bot) Reload(ctx context.Context, msg *chat.Message) ([]*RunResult, map[string]error) {
	results := []*RunResult{}
	failures := map[string]error{}
	for _, name := range b.StopAll() {
		res, err := b.Run(ctx, name, msg)
		if err != nil {
			failures[name] = err
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, failures
}

// Shutdown stops listening for messages, stops every running script, and calls the shutdown hook.
// Runs finishing after this point don't join the running set.
func (b *Bot) Shutdown() {
	b.Close()
	b.shutdownMu.Lock()
	b.shuttingDown = true
	b.shutdownMu.Unlock()
	stopped := b.StopAll()
	b.logger.Printf("stopped %v scripts during shutdown", len(stopped))
	if b.opts.Shutdown != nil {
		b.opts.Shutdown()
	}
}
