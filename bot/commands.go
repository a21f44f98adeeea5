package bot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rodaine/table"
	"github.com/zond/juicebot"
	"github.com/zond/juicebot/chat"
	"github.com/zond/juicebot/lang"
)

const (
	maxListed     = 20
	maxValueShown = 800
	maxErrorShown = 600
)

func m(s ...string) []string {
	return s
}

// nameArg returns the first shell-style argument of req, so quoted names work.
func nameArg(req *Request) string {
	if parts := req.Args.Split(); len(parts) > 0 {
		return parts[0]
	}
	return ""
}

func (b *Bot) operatorCommands() []*ReservedCommand {
	return []*ReservedCommand{
		{
			Names:       m("help"),
			Params:      "[command]",
			Description: "This command. Lists all available system commands",
			Run: func(ctx context.Context, req *Request) error {
				if name := req.Args.Get(0); name != "" {
					cmd, found := b.router.Reserved(strings.ToLower(name))
					if !found {
						b.fail(ctx, "That command does not exist! Run `%s help` to see all commands", b.transport.Mention())
						return nil
					}
					text := fmt.Sprintf("`%s`: %s\nusage: %s", cmd.Names[0], cmd.Description, cmd.Usage(b.transport.Mention()))
					if len(cmd.Names) > 1 {
						text += "\naliases: " + strings.Join(cmd.Names[1:], ", ")
					}
					b.send(ctx, text)
					return nil
				}
				buf := &bytes.Buffer{}
				t := table.New("Command", "Description").WithWriter(buf)
				for _, cmd := range b.router.ReservedCommands() {
					t.AddRow(strings.TrimSpace(cmd.Names[0]+" "+cmd.Params), cmd.Description)
				}
				t.Print()
				b.send(ctx, fmt.Sprintf("%s help\n```\n%s```", b.transport.BotName(), buf.String()))
				return nil
			},
		},
		{
			Names:       m("status"),
			Description: "Prints info about the bot",
			Run: func(ctx context.Context, req *Request) error {
				b.status(ctx)
				return nil
			},
		},
		{
			Names:       m("eval"),
			Params:      "<code>",
			Description: "Runs JS code, without proxied listeners available",
			Run: func(ctx context.Context, req *Request) error {
				code := req.Args.ContentFrom(0)
				if code == "" {
					b.fail(ctx, "Nothing to evaluate")
					return nil
				}
				start := time.Now()
				value, err := b.Eval(ctx, code, req.Message, false)
				if err != nil {
					b.fail(ctx, "Execution failed after %v:\n```js\n%s```", time.Since(start), lang.Truncate(err.Error(), maxErrorShown))
					return nil
				}
				b.succeed(ctx, "Executed successfully in %v:\n```js\n%s```", time.Since(start), lang.Truncate(value, maxValueShown))
				return nil
			},
		},
		{
			Names:       m("async"),
			Params:      "<code>",
			Description: "Wraps an eval script in an async function, allowing for simple awaiting",
			Run: func(ctx context.Context, req *Request) error {
				value, err := b.Eval(ctx, req.Args.ContentFrom(0), req.Message, true)
				if err != nil {
					b.fail(ctx, "Async execution failed:\n```js\n%s```", lang.Truncate(err.Error(), maxErrorShown))
				} else if value == "" {
					b.succeed(ctx, "No explicit return value")
				} else {
					b.succeed(ctx, "Async execution finished.\n```js\n%s```", lang.Truncate(value, maxValueShown))
				}
				return nil
			},
		},
		{
			Names:       m("save", "edit", "create", "add"),
			Params:      "<name> <code>",
			Description: "Creates or updates a script",
			Run: func(ctx context.Context, req *Request) error {
				name := req.Args.Get(0)
				code := req.Args.ContentFrom(1)
				if err := validateName(name); err != nil {
					b.fail(ctx, "A script needs a valid name: %v", err)
					return nil
				}
				if err := validateCode(code); err != nil {
					b.fail(ctx, "A script needs a script! %v", err)
					return nil
				}
				exists, err := b.store.Exists(ctx, name)
				if err != nil {
					return persistence("exists", err)
				}
				verb := "Save"
				if exists {
					verb = "Overwrite"
				}
				choice, err := b.confirm(ctx, fmt.Sprintf("%s script `%s`?\n```js\n%s```", verb, name, code))
				if err != nil {
					return juicebot.WithStack(err)
				}
				if choice != chat.Confirm {
					b.fail(ctx, "Cancelled!")
					return nil
				}
				if _, err := b.store.Upsert(ctx, name, code); err != nil {
					b.logger.Printf("saving %q: %v", name, err)
					b.fail(ctx, "Failed to save script. Error has been logged.")
					return nil
				}
				b.succeed(ctx, "Script `%s` saved!", name)
				return nil
			},
		},
		{
			Names:       m("delete", "remove"),
			Params:      "<name>",
			Description: "Deletes a script from the database",
			Run: func(ctx context.Context, req *Request) error {
				name := nameArg(req)
				if name == "" {
					b.fail(ctx, "Need a script name in order to delete it")
					return nil
				}
				exists, err := b.store.Exists(ctx, name)
				if err != nil {
					return persistence("exists", err)
				}
				if !exists {
					b.fail(ctx, "Couldn't find that script!")
					return nil
				}
				prompt := fmt.Sprintf("Are you sure you want to delete `%s`?", name)
				running := b.running.Has(name)
				if running {
					prompt = fmt.Sprintf("Script `%s` is running, stop and delete?", name)
				}
				choice, err := b.confirm(ctx, prompt, chat.Trash, chat.Cancel)
				if err != nil {
					return juicebot.WithStack(err)
				}
				if choice != chat.Trash {
					b.fail(ctx, "Cancelled!")
					return nil
				}
				if running {
					b.Stop(name)
				}
				if err := b.store.Delete(ctx, name); err != nil {
					b.logger.Printf("deleting %q: %v", name, err)
					b.fail(ctx, "Failed to delete script. Error has been logged.")
					return nil
				}
				b.succeed(ctx, "Script %s deleted!", name)
				return nil
			},
		},
		{
			Names:       m("run", "start"),
			Params:      "<name>...",
			Description: "Runs a script",
			Run: func(ctx context.Context, req *Request) error {
				names := req.Args.Split()
				if len(names) == 0 {
					b.fail(ctx, "I can't read your mind, which script(s)?")
					return nil
				}
				for _, name := range names {
					b.runAndReport(ctx, name, req.Message)
				}
				return nil
			},
		},
		{
			Names:       m("restart", "rerun"),
			Params:      "<name>",
			Description: "Stops and re-runs a script",
			Run: func(ctx context.Context, req *Request) error {
				name := nameArg(req)
				if name == "" {
					b.fail(ctx, "It'd be nice if you actually told me which script...")
					return nil
				}
				b.Stop(name)
				b.runAndReport(ctx, name, req.Message)
				return nil
			},
		},
		{
			Names:       m("stop", "end"),
			Params:      "<name>",
			Description: "Stops a script, and unregisters commands & listeners",
			Run: func(ctx context.Context, req *Request) error {
				name := nameArg(req)
				if name == "" {
					b.fail(ctx, "No script specified! Use `stopall` to stop all scripts.")
					return nil
				}
				if !b.Stop(name) {
					b.fail(ctx, "That script doesn't seem to be running!")
					return nil
				}
				b.succeed(ctx, "Script has been stopped!")
				return nil
			},
		},
		{
			Names:       m("stopall", "enditall"),
			Description: "Stops all running scripts, and removes their commands & listeners",
			Run: func(ctx context.Context, req *Request) error {
				if b.running.Len() == 0 {
					b.fail(ctx, "No scripts are running!")
					return nil
				}
				choice, err := b.confirm(ctx, "Are you sure you want to stop all running scripts?")
				if err != nil {
					return juicebot.WithStack(err)
				}
				if choice != chat.Confirm {
					b.fail(ctx, "Cancelled!")
					return nil
				}
				b.StopAll()
				if remaining := b.running.Len(); remaining > 0 {
					b.logger.Printf("not all scripts were removed during stopall, %v remaining", remaining)
					b.fail(ctx, "Stopall may have failed! This error has been logged")
					return nil
				}
				b.succeed(ctx, "All scripts have been stopped!")
				return nil
			},
		},
		{
			Names:       m("info", "details", "script"),
			Params:      "[name]",
			Description: "Shows details of a given script, or bot info",
			Run: func(ctx context.Context, req *Request) error {
				name := nameArg(req)
				if name == "" {
					b.status(ctx)
					return nil
				}
				return b.info(ctx, name)
			},
		},
		{
			Names:       m("reload"),
			Description: "Stops all running scripts and runs them again from the database",
			Run: func(ctx context.Context, req *Request) error {
				choice, err := b.confirm(ctx, "Are you sure you want to soft restart this bot?")
				if err != nil {
					return juicebot.WithStack(err)
				}
				if choice != chat.Confirm {
					b.fail(ctx, "Cancelled!")
					return nil
				}
				results, failures := b.Reload(ctx, req.Message)
				names := []string{}
				for _, res := range results {
					if res.Script.State() == Listening {
						names = append(names, res.Script.Name)
					}
				}
				for name, err := range failures {
					b.fail(ctx, "Script %s threw error:\n```js\n%s```", name, lang.Truncate(err.Error(), maxErrorShown))
				}
				if len(names) == 0 {
					b.succeed(ctx, "Reloaded, no scripts running")
				} else {
					b.succeed(ctx, "Reloaded, running %s", lang.Enumerator{}.Do(names...))
				}
				return nil
			},
		},
		{
			Names:       m("shutdown", "forceshutdown"),
			Description: "Forcefully shuts down the bot!",
			Run: func(ctx context.Context, req *Request) error {
				b.logger.Printf("forcefully shutting down")
				b.Shutdown()
				return nil
			},
		},
		{
			Names:       m("list"),
			Params:      "['running']",
			Description: "Lists all scripts stored in the database. Use `running` to only show running scripts",
			Run: func(ctx context.Context, req *Request) error {
				names, err := b.store.List(ctx)
				if err != nil {
					return persistence("list", err)
				}
				if strings.ToLower(req.Args.Get(0)) == "running" {
					running := []string{}
					for _, name := range names {
						if b.running.Has(name) {
							running = append(running, name)
						}
					}
					names = running
				}
				buf := &bytes.Buffer{}
				t := table.New("", "Name").WithWriter(buf)
				for idx, name := range names {
					if idx == maxListed {
						break
					}
					mark := "-"
					if b.running.Has(name) {
						mark = "*"
					}
					t.AddRow(mark, name)
				}
				t.Print()
				if len(names) > maxListed {
					fmt.Fprintf(buf, "\n ... %v more\n", len(names)-maxListed)
				}
				b.send(ctx, fmt.Sprintf("%s.\n```\n%s```", lang.Count(len(names), "script"), buf.String()))
				return nil
			},
		},
		{
			Names:       m("debug"),
			Params:      "<name>",
			Description: "Shows the console output of a script in the chat",
			Run: func(ctx context.Context, req *Request) error {
				name := nameArg(req)
				if name == "" {
					b.fail(ctx, "Which script?")
					return nil
				}
				b.consoles.Attach(name, roomConsole{bot: b, script: name})
				b.succeed(ctx, "Attached console of %s", name)
				return nil
			},
		},
		{
			Names:       m("undebug"),
			Params:      "<name>",
			Description: "Stops showing the console output of a script",
			Run: func(ctx context.Context, req *Request) error {
				name := nameArg(req)
				if !b.consoles.Detach(name, roomConsole{bot: b, script: name}) {
					b.fail(ctx, "Console of %q isn't attached", name)
					return nil
				}
				b.succeed(ctx, "Detached console of %s", name)
				return nil
			},
		},
	}
}

// roomConsole posts console output of a script as bot messages.
type roomConsole struct {
	bot    *Bot
	script string
}

func (r roomConsole) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line == "" {
		return len(p), nil
	}
	if _, err := r.bot.transport.Send(context.Background(), fmt.Sprintf("[%s] %s", r.script, line)); err != nil {
		return 0, juicebot.WithStack(err)
	}
	return len(p), nil
}

func (b *Bot) runAndReport(ctx context.Context, name string, msg *chat.Message) {
	res, err := b.Run(ctx, name, msg)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		b.fail(ctx, "Script %q is already running! Make sure to `stop` it!", name)
	case errors.Is(err, ErrNotFound):
		b.fail(ctx, "Script %q doesn't seem to exist", name)
	case errors.Is(err, ErrInvalidName):
		b.fail(ctx, "A script needs a valid name: %v", err)
	case errors.Is(err, ErrShutdown):
		b.fail(ctx, "Script %s was not started, the bot is shutting down", name)
	case errors.As(err, new(*PersistenceError)):
		b.logger.Printf("loading %q: %v", name, err)
		b.fail(ctx, "Failed to load script %q. Error has been logged.", name)
	case err != nil:
		b.fail(ctx, "Script %s threw error:\n```js\n%s```", name, lang.Truncate(err.Error(), maxErrorShown))
	case res.Commands+res.Listeners > 0:
		b.succeed(ctx, "Script %s has been run! Registered %s and %d client %s", name, lang.Count(res.Commands, "command"), res.Listeners, lang.Inflect(res.Listeners, "listener"))
	default:
		b.succeed(ctx, "Script %s has been run! No listeners registered!", name)
	}
}

func (b *Bot) status(ctx context.Context) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	b.send(ctx, fmt.Sprintf(
		"%s, a bot designed for extensibility and ease of modification.\nGo: %s\nHost: %s\nUp since: %s\nScripts executed: %s\nRunning scripts: %v",
		b.transport.BotName(),
		runtime.Version(),
		host,
		humanize.Time(b.started),
		humanize.Comma(int64(b.Executions())),
		b.running.Len(),
	))
}

func (b *Bot) info(ctx context.Context, name string) error {
	rec, err := b.store.Fetch(ctx, name)
	if errors.Is(err, os.ErrNotExist) {
		b.fail(ctx, "Couldn't find that script")
		return nil
	} else if err != nil {
		return persistence("fetch", err)
	}
	s := NewScript(rec)
	title := s.Name
	running, isRunning := b.running.Get(name)
	if isRunning {
		title = "[RUNNING] " + title
	}
	updated := "Never"
	if !s.Updated.IsZero() {
		updated = humanize.Time(s.Updated)
	}
	text := fmt.Sprintf("`%s`\n```js\n%s```\nCreated: %s\nUpdated: %s", title, s.Code, humanize.Time(s.Created), updated)
	if isRunning {
		triggers := []string{}
		for _, cmd := range running.Commands() {
			triggers = append(triggers, strings.Join(cmd.Triggers, "/"))
		}
		events := []string{}
		for _, l := range running.Listeners() {
			events = append(events, l.Event)
		}
		if len(triggers) > 0 {
			text += fmt.Sprintf("\n%s: %s", lang.Capitalize(lang.Inflect(len(triggers), "command")), lang.Enumerator{}.Do(triggers...))
		}
		if len(events) > 0 {
			text += fmt.Sprintf("\n%s: %s", lang.Capitalize(lang.Inflect(len(events), "listener")), lang.Enumerator{}.Do(events...))
		}
	}
	b.send(ctx, text)
	return nil
}
