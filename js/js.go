// Package js runs script code inside v8 isolates.
//
// Every script gets its own Machine, and the closures a script registers
// stay valid as Functions until the Machine is closed.
package js

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/zond/juicebot"
	"rogchap.com/v8go"
)

const (
	DefaultTimeout = 5 * time.Second
)

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("machine closed")
)

// ScriptError is a fault thrown by script code.
type ScriptError struct {
	Message  string
	Location string
	Stack    string
}

func (s *ScriptError) Error() string {
	if s.Location == "" {
		return s.Message
	}
	return fmt.Sprintf("%s (at %s)", s.Message, s.Location)
}

func toScriptError(err error) error {
	jsErr := &v8go.JSError{}
	if errors.As(err, &jsErr) {
		return &ScriptError{
			Message:  jsErr.Message,
			Location: jsErr.Location,
			Stack:    jsErr.StackTrace,
		}
	}
	return err
}

// Storage is the key/value store exposed to scripts as `storage`.
// Values are JSON documents.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
	Remove(key string) error
}

// Capabilities is what a script can do to the world outside its isolate.
type Capabilities interface {
	Send(text string) error
	// RegisterCommand returns false, without registering anything, if a trigger is reserved.
	RegisterCommand(triggers []string, fn *Function) bool
	RegisterListener(event string, fn *Function) error
	IsPrivileged() bool
}

// Target describes one execution of source inside a Machine.
type Target struct {
	Source       string
	Capabilities Capabilities
	// Eval hides `command` and `proxy`, so the execution can't leave registrations behind.
	Eval    bool
	Storage Storage
	Owner   string
	Message any
	Console io.Writer
}

type Machine struct {
	origin                 string
	mutex                  sync.Mutex
	iso                    *v8go.Isolate
	vctx                   *v8go.Context
	unableToGenerateString *v8go.Value
	closed                 bool
	// HandlerTimeout bounds every Function.Call. Zero leaves calls unbounded.
	HandlerTimeout time.Duration
}

// NewMachine returns a machine whose stack traces name origin.
// A handlerTimeout of zero means registered functions may run until their context is done.
func NewMachine(origin string, handlerTimeout time.Duration) (*Machine, error) {
	m := &Machine{
		origin:         origin,
		iso:            v8go.NewIsolate(),
		HandlerTimeout: handlerTimeout,
	}
	m.vctx = v8go.NewContext(m.iso)
	var err error
	if m.unableToGenerateString, err = v8go.NewValue(m.iso, "unable to generate exception"); err != nil {
		m.vctx.Close()
		m.iso.Dispose()
		return nil, juicebot.WithStack(err)
	}
	return m, nil
}

func (m *Machine) Origin() string {
	return m.origin
}

// Close disposes the isolate. It waits for running code to finish.
func (m *Machine) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.vctx.Close()
	m.iso.Dispose()
}

func (m *Machine) String(s string) *v8go.Value {
	if res, err := v8go.NewValue(m.iso, s); err == nil {
		return res
	}
	return m.unableToGenerateString
}

func (m *Machine) Throw(format string, args ...any) *v8go.Value {
	return m.iso.ThrowException(m.String(fmt.Sprintf(format, args...)))
}

func (m *Machine) fromJSON(s string) (*v8go.Value, error) {
	val, err := v8go.JSONParse(m.vctx, s)
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	return val, nil
}

func (m *Machine) fromGo(v any) (*v8go.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	return m.fromJSON(string(b))
}

type result struct {
	value *v8go.Value
	err   error
}

// withTimeout runs f, terminating the isolate if it takes too long or ctx is done.
// A timeout of zero or less only stops f when ctx is done.
// It doesn't return until f has returned, so the isolate is idle afterwards.
func (m *Machine) withTimeout(ctx context.Context, f func() (*v8go.Value, error), timeout time.Duration) (*v8go.Value, error) {
	results := make(chan result, 1)
	go func() {
		val, err := f()
		results <- result{value: val, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case res := <-results:
		if res.err != nil {
			return nil, juicebot.WithStack(toScriptError(res.err))
		}
		return res.value, nil
	case <-expired:
		m.iso.TerminateExecution()
		<-results
		return nil, juicebot.WithStack(ErrTimeout)
	case <-ctx.Done():
		m.iso.TerminateExecution()
		<-results
		return nil, juicebot.WithStack(ctx.Err())
	}
}

// settle drains the microtask queue and resolves val if it is a promise.
func (m *Machine) settle(val *v8go.Value) (*v8go.Value, error) {
	m.vctx.PerformMicrotaskCheckpoint()
	if val == nil || !val.IsPromise() {
		return val, nil
	}
	promise, err := val.AsPromise()
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	switch promise.State() {
	case v8go.Rejected:
		return nil, juicebot.WithStack(m.rejection(promise.Result()))
	case v8go.Fulfilled:
		return promise.Result(), nil
	}
	// Nothing in the isolate can resolve it any more.
	return nil, nil
}

func (m *Machine) rejection(val *v8go.Value) error {
	res := &ScriptError{Message: val.String()}
	if val.IsObject() {
		if obj, err := val.AsObject(); err == nil {
			if stack, err := obj.Get("stack"); err == nil && stack.IsString() {
				res.Stack = stack.String()
			}
		}
	}
	return res
}

func (m *Machine) stringify(val *v8go.Value) string {
	if val == nil || val.IsUndefined() {
		return ""
	}
	if val.IsString() {
		return val.String()
	}
	if val.IsFunction() || val.IsSymbol() {
		return val.String()
	}
	if s, err := v8go.JSONStringify(m.vctx, val); err == nil {
		return s
	}
	return val.String()
}

// Run executes t.Source once with the globals t allows, and returns the completion value.
// Registrations made by the code before a failure stay in place.
func (m *Machine) Run(ctx context.Context, t *Target, timeout time.Duration) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return "", juicebot.WithStack(ErrClosed)
	}
	if err := m.install(t); err != nil {
		return "", juicebot.WithStack(err)
	}
	val, err := m.withTimeout(ctx, func() (*v8go.Value, error) {
		return m.vctx.RunScript(t.Source, m.origin)
	}, timeout)
	if err != nil {
		m.log(t.Console, "-- error in %q --\n%v\n", m.origin, err)
		return "", err
	}
	if val, err = m.settle(val); err != nil {
		m.log(t.Console, "-- error in %q --\n%v\n", m.origin, err)
		return "", err
	}
	return m.stringify(val), nil
}

func (m *Machine) log(w io.Writer, format string, args ...any) {
	if w != nil {
		log.New(w, "", 0).Printf(format, args...)
	}
}

// Function is a script closure that can be called after the code that created it has finished.
type Function struct {
	m  *Machine
	fn *v8go.Function
}

func (f *Function) Machine() *Machine {
	return f.m
}

// Call invokes the closure with args converted to JSON values.
// A thrown error, a timeout or a rejected promise are returned as errors.
func (f *Function) Call(ctx context.Context, args ...any) error {
	f.m.mutex.Lock()
	defer f.m.mutex.Unlock()
	if f.m.closed {
		return juicebot.WithStack(ErrClosed)
	}
	vals := make([]v8go.Valuer, len(args))
	for i, arg := range args {
		val, err := f.m.fromGo(arg)
		if err != nil {
			return juicebot.WithStack(err)
		}
		vals[i] = val
	}
	val, err := f.m.withTimeout(ctx, func() (*v8go.Value, error) {
		return f.fn.Call(v8go.Undefined(f.m.iso), vals...)
	}, f.m.HandlerTimeout)
	if err != nil {
		return err
	}
	_, err = f.m.settle(val)
	return err
}
