package bot

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/zond/juicebot/chat"
)

type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (s *syncBuffer) Write(b []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.buf.Write(b)
}

func (s *syncBuffer) String() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) Lines() []string {
	content := strings.TrimSpace(s.String())
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

type routerFixture struct {
	router   *Router
	running  *RunningSet
	logs     *syncBuffer
	inFlight *sync.WaitGroup
	mutex    sync.Mutex
	failures []string
	reserved int32
}

func newRouterFixture(t *testing.T, policy Policy) *routerFixture {
	t.Helper()
	f := &routerFixture{
		running:  NewRunningSet(),
		logs:     &syncBuffer{},
		inFlight: &sync.WaitGroup{},
	}
	var err error
	if f.router, err = NewRouter([]*ReservedCommand{
		{
			Names: m("stop", "end"),
			Run: func(ctx context.Context, req *Request) error {
				atomic.AddInt32(&f.reserved, 1)
				return nil
			},
		},
	}, f.running, policy, log.New(f.logs, "", 0), f.inFlight, func(ctx context.Context, text string) {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.failures = append(f.failures, text)
	}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *routerFixture) Failures() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string{}, f.failures...)
}

func listeningScript(f *routerFixture, name string) *Script {
	s := &Script{Name: name}
	s.state = Listening
	f.running.Add(s)
	return s
}

func request(trigger string, privileged bool) *Request {
	return &Request{
		Message:    &chat.Message{ID: "1", Author: "alice", Content: "@bot " + trigger},
		Trigger:    trigger,
		Args:       chat.NewArgs(""),
		Privileged: privileged,
	}
}

func TestDuplicateReservedTriggers(t *testing.T) {
	_, err := NewRouter([]*ReservedCommand{
		{Names: m("run", "start")},
		{Names: m("begin", "start")},
	}, NewRunningSet(), FireAll, log.Default(), &sync.WaitGroup{}, nil)
	if err == nil {
		t.Errorf("wanted an error for duplicate reserved triggers")
	}
}

func TestRegisterReservedTrigger(t *testing.T) {
	f := newRouterFixture(t, FireAll)
	s := listeningScript(f, "a")
	if !f.router.RegisterCommand(s, []string{"ping"}, HandlerFunc(func(context.Context, ...any) error { return nil })) {
		t.Fatalf("ping should be registrable")
	}
	before := len(s.Commands())
	for _, triggers := range [][]string{{"stop"}, {"x", "end"}, {"STOP"}, {}} {
		if f.router.RegisterCommand(s, triggers, HandlerFunc(func(context.Context, ...any) error { return nil })) {
			t.Errorf("%v should not be registrable", triggers)
		}
	}
	if after := len(s.Commands()); after != before {
		t.Errorf("got %v commands after collisions, want %v", after, before)
	}
}

func TestRegisterOnStoppedScript(t *testing.T) {
	f := newRouterFixture(t, FireAll)
	s := listeningScript(f, "a")
	s.stop()
	if f.router.RegisterCommand(s, []string{"ping"}, HandlerFunc(func(context.Context, ...any) error { return nil })) {
		t.Errorf("stopped scripts should not get new commands")
	}
}

func TestSharedTriggerFiresAllAndIsolatesFaults(t *testing.T) {
	f := newRouterFixture(t, FireAll)
	thrower := listeningScript(f, "a")
	worker := listeningScript(f, "b")
	completed := int32(0)
	f.router.RegisterCommand(thrower, []string{"ping"}, HandlerFunc(func(context.Context, ...any) error {
		return errors.New("boom")
	}))
	f.router.RegisterCommand(worker, []string{"ping"}, HandlerFunc(func(ctx context.Context, args ...any) error {
		atomic.AddInt32(&completed, 1)
		return nil
	}))
	if fired := f.router.Dispatch(context.Background(), request("ping", false)); fired != 2 {
		t.Errorf("got %v handlers started, want 2", fired)
	}
	f.inFlight.Wait()
	if completed != 1 {
		t.Errorf("got %v completions, want 1", completed)
	}
	lines := f.logs.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], `script "a" failed handling "ping"`) {
		t.Errorf("got log %q, wanted one line about a", lines)
	}
	if len(f.Failures()) != 1 {
		t.Errorf("got failures %q, want one", f.Failures())
	}
	if thrower.State() != Listening || !f.running.Has("a") {
		t.Errorf("a faulting handler should not stop its script")
	}
}

func TestFirstWins(t *testing.T) {
	f := newRouterFixture(t, FirstWins)
	called := []string{}
	mutex := sync.Mutex{}
	for _, name := range []string{"b", "a"} {
		s := listeningScript(f, name)
		f.router.RegisterCommand(s, []string{"ping"}, HandlerFunc(func(context.Context, ...any) error {
			mutex.Lock()
			defer mutex.Unlock()
			called = append(called, name)
			return nil
		}))
	}
	f.router.Dispatch(context.Background(), request("ping", false))
	f.inFlight.Wait()
	if diff := cmp.Diff(called, []string{"a"}); diff != "" {
		t.Error(diff)
	}
}

func TestNoMatchesIsSilent(t *testing.T) {
	f := newRouterFixture(t, FireAll)
	listeningScript(f, "a")
	if fired := f.router.Dispatch(context.Background(), request("nothing", false)); fired != 0 {
		t.Errorf("got %v handlers started, want 0", fired)
	}
	f.inFlight.Wait()
	if f.logs.String() != "" || len(f.Failures()) != 0 {
		t.Errorf("got log %q and failures %q, wanted nothing", f.logs.String(), f.Failures())
	}
}

func TestPrivilegedPath(t *testing.T) {
	f := newRouterFixture(t, FireAll)
	f.router.Dispatch(context.Background(), request("end", false))
	f.inFlight.Wait()
	if f.reserved != 0 {
		t.Errorf("unprivileged requests must not reach reserved commands")
	}
	if fired := f.router.Dispatch(context.Background(), request("end", true)); fired != 1 {
		t.Errorf("got %v, want 1", fired)
	}
	f.inFlight.Wait()
	if f.reserved != 1 {
		t.Errorf("got %v reserved invocations, want 1", f.reserved)
	}
}

func TestStoppedScriptsAreNotDispatched(t *testing.T) {
	f := newRouterFixture(t, FireAll)
	s := listeningScript(f, "a")
	f.router.RegisterCommand(s, []string{"ping"}, HandlerFunc(func(context.Context, ...any) error {
		t.Errorf("stopped script was dispatched to")
		return nil
	}))
	s.stop()
	if fired := f.router.Dispatch(context.Background(), request("ping", false)); fired != 0 {
		t.Errorf("got %v, want 0", fired)
	}
}
