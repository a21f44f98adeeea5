package bot

import (
	"context"
	"slices"

	"github.com/zond/juicebot"
	"github.com/zond/juicebot/chat"
)

var (
	defaultChoices = []string{chat.Cancel, chat.Confirm}
)

// confirm posts prompt, reacts to it with every choice, and waits for the
// operator to pick one. It returns "" if nobody picked before the confirm timeout.
func (b *Bot) confirm(ctx context.Context, prompt string, choices ...string) (string, error) {
	if len(choices) == 0 {
		choices = defaultChoices
	}
	msg, err := b.transport.Send(ctx, prompt)
	if err != nil {
		return "", juicebot.WithStack(err)
	}
	for _, choice := range choices {
		if err := b.transport.React(ctx, msg.ID, b.transport.BotName(), choice); err != nil {
			return "", juicebot.WithStack(err)
		}
	}
	reaction, err := b.transport.AwaitReaction(ctx, msg.ID, func(r *chat.Reaction) bool {
		return r.User == b.opts.Operator && slices.Contains(choices, r.Emoji)
	}, b.opts.ConfirmTimeout)
	if err != nil {
		return "", juicebot.WithStack(err)
	}
	if reaction == nil {
		return "", nil
	}
	return reaction.Emoji, nil
}
