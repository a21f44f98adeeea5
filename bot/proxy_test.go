package bot

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/zond/juicebot/events"
)

func TestRemoveAllIsExact(t *testing.T) {
	bus := events.NewBus()
	logs := &syncBuffer{}
	inFlight := &sync.WaitGroup{}
	p := NewProxy(bus, log.New(logs, "", 0), inFlight)

	host := int32(0)
	bus.On("join", func(context.Context, *events.Event) {
		atomic.AddInt32(&host, 1)
	})
	counts := map[string]*int32{"s": new(int32), "t": new(int32)}
	scripts := map[string]*Script{}
	for name, count := range counts {
		s := &Script{Name: name, state: Running}
		scripts[name] = s
		if _, err := p.AddListener(s, "join", HandlerFunc(func(context.Context, ...any) error {
			atomic.AddInt32(count, 1)
			return nil
		})); err != nil {
			t.Fatal(err)
		}
		if !s.Listening() {
			t.Errorf("%v should be listening after AddListener", name)
		}
	}
	if got := bus.Count("join"); got != 3 {
		t.Fatalf("got %v listeners, want 3", got)
	}

	scripts["s"].stop()
	if removed := p.RemoveAll(scripts["s"]); removed != 1 {
		t.Errorf("got %v removed, want 1", removed)
	}
	if scripts["s"].Listening() {
		t.Errorf("s should have no listeners left")
	}
	bus.Emit(context.Background(), "join", nil)
	inFlight.Wait()
	if *counts["s"] != 0 || *counts["t"] != 1 || host != 1 {
		t.Errorf("got s=%v t=%v host=%v, want 0, 1, 1", *counts["s"], *counts["t"], host)
	}
}

func TestListenerFaultIsLogged(t *testing.T) {
	bus := events.NewBus()
	logs := &syncBuffer{}
	inFlight := &sync.WaitGroup{}
	p := NewProxy(bus, log.New(logs, "", 0), inFlight)
	s := &Script{Name: "s", state: Running}
	if _, err := p.AddListener(s, "leave", HandlerFunc(func(context.Context, ...any) error {
		return errors.New("boom")
	})); err != nil {
		t.Fatal(err)
	}
	bus.Emit(context.Background(), "leave", nil)
	inFlight.Wait()
	if !strings.Contains(logs.String(), `script "s" failed handling event "leave": boom`) {
		t.Errorf("got %q", logs.String())
	}
}

func TestAddListenerToStoppedScript(t *testing.T) {
	bus := events.NewBus()
	p := NewProxy(bus, log.Default(), &sync.WaitGroup{})
	s := &Script{Name: "s", state: Stopped}
	if _, err := p.AddListener(s, "join", HandlerFunc(func(context.Context, ...any) error { return nil })); err == nil {
		t.Errorf("wanted an error")
	}
	if bus.Count("join") != 0 {
		t.Errorf("listener of a stopped script was left on the bus")
	}
	if _, err := p.AddListener(&Script{Name: "t", state: Running}, "", nil); err == nil {
		t.Errorf("wanted an error for an empty event name")
	}
}
