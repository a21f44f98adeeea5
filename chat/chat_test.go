package chat

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/zond/juicebot/events"
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

func TestPostBroadcastsAndEmits(t *testing.T) {
	ctx := context.Background()
	r := NewRoom("bot", time.Minute)
	alice := &syncBuffer{}
	bob := &syncBuffer{}
	r.Join(ctx, "alice", alice)
	leaveBob := r.Join(ctx, "bob", bob)

	var got []*Message
	r.Bus().On(events.Message, func(_ context.Context, ev *events.Event) {
		got = append(got, ev.Payload.(*Message))
	})

	msg, err := r.Post(ctx, "alice", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Bot || msg.Author != "alice" {
		t.Errorf("got %+v", msg)
	}
	if _, err := r.Send(ctx, "hi alice"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[1].Bot || got[1].Author != "bot" {
		t.Errorf("got %+v", got)
	}
	for _, buf := range []*syncBuffer{alice, bob} {
		if !strings.Contains(buf.String(), "["+msg.ID+"] alice: hello") {
			t.Errorf("got %q, wanted the message", buf.String())
		}
	}
	if diff := cmp.Diff(r.Members(), []string{"alice", "bob"}); diff != "" {
		t.Error(diff)
	}
	leaveBob()
	if diff := cmp.Diff(r.Members(), []string{"alice"}); diff != "" {
		t.Error(diff)
	}
	if _, err := r.Post(ctx, "alice", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("got %v, want %v", err, ErrEmptyMessage)
	}
}

func TestAwaitReaction(t *testing.T) {
	ctx := context.Background()
	r := NewRoom("bot", time.Minute)
	prompt, err := r.Send(ctx, "sure?")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for r.Bus().Count(events.Reaction) == 0 {
			time.Sleep(time.Millisecond)
		}
		r.React(ctx, prompt.ID, "bot", Confirm)
		r.React(ctx, prompt.ID, "mallory", Confirm)
		r.React(ctx, prompt.ID, "owner", "yes")
	}()
	reaction, err := r.AwaitReaction(ctx, prompt.ID, func(re *Reaction) bool {
		return re.User == "owner"
	}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	want := &Reaction{MessageID: prompt.ID, User: "owner", Emoji: Confirm}
	if diff := cmp.Diff(reaction, want); diff != "" {
		t.Errorf("got %+v, want %+v: %v", reaction, want, diff)
	}
	if n := r.Bus().Count(events.Reaction); n != 0 {
		t.Errorf("got %v reaction listeners left, want 0", n)
	}
}

func TestAwaitReactionTimeout(t *testing.T) {
	ctx := context.Background()
	r := NewRoom("bot", time.Minute)
	prompt, err := r.Send(ctx, "sure?")
	if err != nil {
		t.Fatal(err)
	}
	reaction, err := r.AwaitReaction(ctx, prompt.ID, nil, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if reaction != nil {
		t.Errorf("got %+v, want no reaction", reaction)
	}
}

func TestReactToUnknownMessage(t *testing.T) {
	ctx := context.Background()
	r := NewRoom("bot", time.Minute)
	if err := r.React(ctx, "404", "alice", Confirm); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("got %v, want %v", err, ErrUnknownMessage)
	}
	if _, err := r.AwaitReaction(ctx, "404", nil, time.Millisecond); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("got %v, want %v", err, ErrUnknownMessage)
	}
}

func TestHandleLine(t *testing.T) {
	ctx := context.Background()
	r := NewRoom("bot", time.Minute)
	out := &syncBuffer{}
	r.Join(ctx, "alice", out)
	var reactions []*Reaction
	r.Bus().On(events.Reaction, func(_ context.Context, ev *events.Event) {
		reactions = append(reactions, ev.Payload.(*Reaction))
	})
	if err := r.handleLine(ctx, "alice", "  hello there ", out); err != nil {
		t.Fatal(err)
	}
	if err := r.handleLine(ctx, "alice", "/react 1 trash", out); err != nil {
		t.Fatal(err)
	}
	if len(reactions) != 1 || reactions[0].Emoji != Trash {
		t.Errorf("got %+v", reactions)
	}
	if err := r.handleLine(ctx, "alice", "/who", out); err != nil {
		t.Fatal(err)
	}
	if err := r.handleLine(ctx, "alice", "/nope", out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[1] alice: hello there", "alice here", `Unknown command: "/nope"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("got %q, wanted %q", out.String(), want)
		}
	}
}
