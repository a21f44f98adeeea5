package chat

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gliderlabs/ssh"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zond/juicebot/lang"
	"golang.org/x/term"
)

// HandleSession lets an SSH session take part in the room as sess.User().
func (r *Room) HandleSession(sess ssh.Session) {
	sessionID := uuid.NewString()
	t := term.NewTerminal(sess, "> ")
	user := sess.User()
	ctx := sess.Context()

	log.Printf("%s: %q connected from %v", sessionID, user, sess.RemoteAddr())
	fmt.Fprintf(t, "Welcome %s! Talk to the bot with %q, try %q.\n\n", user, r.Mention()+" <command>", r.Mention()+" help")

	leave := r.Join(ctx, user, t)
	defer leave()

	for {
		line, err := t.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("%s: %q disconnected: %v", sessionID, user, err)
			}
			return
		}
		if err := r.handleLine(ctx, user, line, t); err != nil {
			fmt.Fprintln(t, err)
		}
	}
}

func (r *Room) handleLine(ctx context.Context, user string, line string, w io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := r.Post(ctx, user, line)
		return err
	}
	words := strings.Fields(line)
	switch words[0] {
	case "/react":
		if len(words) != 3 {
			fmt.Fprintln(w, "usage: /react <message id> <emoji|yes|no|trash>")
			return nil
		}
		return r.React(ctx, words[1], user, words[2])
	case "/who":
		fmt.Fprintf(w, "%s here\n", lang.Enumerator{}.Do(r.Members()...))
	case "/help":
		fmt.Fprintln(w, "Lines not starting with / are said in the room.")
		fmt.Fprintln(w, "  /react <id> <emoji>  React to the message with the given id")
		fmt.Fprintln(w, "  /who                 List who is in the room")
	default:
		fmt.Fprintf(w, "Unknown command: %q\n", words[0])
	}
	return nil
}
