package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/zond/juicebot/chat"
	"github.com/zond/juicebot/js"
)

// capabilities binds the sandbox of one execution to the bot and the script it runs.
type capabilities struct {
	bot     *Bot
	script  *Script
	message *chat.Message
}

func (c *capabilities) Send(text string) error {
	_, err := c.bot.transport.Send(context.Background(), text)
	return err
}

func (c *capabilities) RegisterCommand(triggers []string, fn *js.Function) bool {
	if c.script == nil {
		return false
	}
	if c.bot.router.Collides(triggers) {
		c.bot.send(context.Background(), fmt.Sprintf("Could not register command with triggers [%s]. A trigger conflicts with an internal command", strings.Join(triggers, ",")))
		return false
	}
	return c.bot.router.RegisterCommand(c.script, triggers, fn)
}

func (c *capabilities) RegisterListener(event string, fn *js.Function) error {
	if c.script == nil {
		return errors.New("listeners can only be registered by scripts")
	}
	_, err := c.bot.proxy.AddListener(c.script, event, fn)
	return err
}

func (c *capabilities) IsPrivileged() bool {
	return c.bot.isOperator(c.message)
}
