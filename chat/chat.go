// Package chat is the transport every script and operator talks through: a
// single room where users post messages and react to them, with the events of
// the room published on an events.Bus.
package chat

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/pkg/errors"
	"github.com/zond/juicebot"
	"github.com/zond/juicebot/events"
)

const (
	Confirm = "✅"
	Cancel  = "❌"
	Trash   = "🗑"
)

const (
	defaultMessageTTL = 10 * time.Minute
	maxHistory        = 1024
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrEmptyMessage   = errors.New("empty message")

	// ReactionAliases lets terminal users type words instead of emoji.
	ReactionAliases = map[string]string{
		"y":      Confirm,
		"yes":    Confirm,
		"n":      Cancel,
		"no":     Cancel,
		"trash":  Trash,
		"delete": Trash,
	}
)

type Message struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	Bot     bool      `json:"bot"`
	At      time.Time `json:"at"`
}

type Reaction struct {
	MessageID string `json:"messageId"`
	User      string `json:"user"`
	Emoji     string `json:"emoji"`
	Bot       bool   `json:"bot"`
}

type Presence struct {
	User string `json:"user"`
}

type Room struct {
	bus     *events.Bus
	botName string
	members *Fanout
	history cache.Cache[string, *Message]
	lastID  uint64
}

// NewRoom creates a room where botName speaks through Send. Messages can be
// reacted to for messageTTL after they were posted.
func NewRoom(botName string, messageTTL time.Duration) *Room {
	if messageTTL <= 0 {
		messageTTL = defaultMessageTTL
	}
	return &Room{
		bus:     events.NewBus(),
		botName: botName,
		members: NewFanout(),
		history: cache.NewCache[string, *Message]().WithTTL(messageTTL).WithMaxKeys(maxHistory).WithLRU(),
	}
}

// Bus returns the shared bus. The room owns it, callers only attach and detach listeners.
func (r *Room) Bus() *events.Bus {
	return r.bus
}

func (r *Room) BotName() string {
	return r.botName
}

// Mention is the word that addresses the bot when it starts a message.
func (r *Room) Mention() string {
	return "@" + r.botName
}

// Join makes w receive everything said in the room until the returned func is called.
func (r *Room) Join(ctx context.Context, user string, w io.Writer) func() {
	r.members.Push(user, w)
	fmt.Fprintf(r.members, "* %s joined\n", user)
	r.bus.Emit(ctx, events.Join, &Presence{User: user})
	return func() {
		if r.members.Drop(w) {
			fmt.Fprintf(r.members, "* %s left\n", user)
			r.bus.Emit(ctx, events.Leave, &Presence{User: user})
		}
	}
}

func (r *Room) Members() []string {
	seen := map[string]bool{}
	result := []string{}
	for _, name := range r.members.Names() {
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// Post publishes content from user.
func (r *Room) Post(ctx context.Context, user string, content string) (*Message, error) {
	return r.publish(ctx, user, content, false)
}

// Send publishes content from the bot.
func (r *Room) Send(ctx context.Context, content string) (*Message, error) {
	return r.publish(ctx, r.botName, content, true)
}

func (r *Room) publish(ctx context.Context, author string, content string, bot bool) (*Message, error) {
	if content == "" {
		return nil, juicebot.WithStack(ErrEmptyMessage)
	}
	msg := &Message{
		ID:      strconv.FormatUint(atomic.AddUint64(&r.lastID, 1), 10),
		Author:  author,
		Content: content,
		Bot:     bot,
		At:      time.Now().UTC(),
	}
	r.history.Set(msg.ID, msg, 0)
	fmt.Fprintf(r.members, "[%s] %s: %s\n", msg.ID, msg.Author, msg.Content)
	r.bus.Emit(ctx, events.Message, msg)
	return msg, nil
}

// Message returns a message that is still reactable.
func (r *Room) Message(id string) (*Message, bool) {
	return r.history.Get(id)
}

func (r *Room) React(ctx context.Context, messageID string, user string, emoji string) error {
	if _, found := r.history.Get(messageID); !found {
		return errors.Wrapf(ErrUnknownMessage, "message %q", messageID)
	}
	if alias, found := ReactionAliases[emoji]; found {
		emoji = alias
	}
	reaction := &Reaction{
		MessageID: messageID,
		User:      user,
		Emoji:     emoji,
		Bot:       user == r.botName,
	}
	fmt.Fprintf(r.members, "[%s] %s reacted %s\n", messageID, user, emoji)
	r.bus.Emit(ctx, events.Reaction, reaction)
	return nil
}

// AwaitReaction waits for the first reaction to messageID that accept approves.
// Reactions by the bot itself are never returned. A nil reaction and nil error
// means nobody reacted before timeout.
func (r *Room) AwaitReaction(ctx context.Context, messageID string, accept func(*Reaction) bool, timeout time.Duration) (*Reaction, error) {
	if _, found := r.history.Get(messageID); !found {
		return nil, errors.Wrapf(ErrUnknownMessage, "message %q", messageID)
	}
	results := make(chan *Reaction, 1)
	token := r.bus.On(events.Reaction, func(_ context.Context, ev *events.Event) {
		reaction, ok := ev.Payload.(*Reaction)
		if !ok || reaction.Bot || reaction.MessageID != messageID {
			return
		}
		if accept != nil && !accept(reaction) {
			return
		}
		select {
		case results <- reaction:
		default:
		}
	})
	defer r.bus.Off(events.Reaction, token)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reaction := <-results:
		return reaction, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, juicebot.WithStack(ctx.Err())
	}
}
