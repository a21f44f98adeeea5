package chat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCommand(t *testing.T) {
	mention, trigger, args, ok := ParseCommand("@bot  SAVE echo42  command('ping', () => send('pong'))")
	if !ok {
		t.Fatal("wanted ok")
	}
	if mention != "@bot" || trigger != "save" {
		t.Errorf("got %q %q", mention, trigger)
	}
	if got := args.Get(0); got != "echo42" {
		t.Errorf("got %q, want echo42", got)
	}
	if got := args.ContentFrom(1); got != "command('ping', () => send('pong'))" {
		t.Errorf("got %q", got)
	}
	if got := args.ContentFrom(10); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := args.Get(10); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestParseCommandTooShort(t *testing.T) {
	for _, content := range []string{"", "   ", "@bot", "@bot   "} {
		if _, _, _, ok := ParseCommand(content); ok {
			t.Errorf("%q should not parse", content)
		}
	}
}

func TestSplit(t *testing.T) {
	args := NewArgs(`a "b c" d`)
	if diff := cmp.Diff(args.Split(), []string{"a", "b c", "d"}); diff != "" {
		t.Error(diff)
	}
}
