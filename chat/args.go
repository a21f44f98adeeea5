package chat

import (
	"strings"
	"unicode"

	"github.com/buildkite/shellwords"
)

// Args are the words following the trigger of a command message.
type Args struct {
	Words []string
	raw   string
}

// ParseCommand splits content into mention, trigger and arguments.
// The trigger is lower cased. ok is false when content has fewer than two words.
func ParseCommand(content string) (mention string, trigger string, args Args, ok bool) {
	rest := strings.TrimLeftFunc(content, unicode.IsSpace)
	mention, rest = nextWord(rest)
	trigger, rest = nextWord(rest)
	if mention == "" || trigger == "" {
		return "", "", Args{}, false
	}
	return mention, strings.ToLower(trigger), NewArgs(rest), true
}

func NewArgs(raw string) Args {
	raw = strings.TrimLeftFunc(raw, unicode.IsSpace)
	return Args{
		Words: strings.Fields(raw),
		raw:   raw,
	}
}

func nextWord(s string) (string, string) {
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx == -1 {
		return s, ""
	}
	return s[:idx], strings.TrimLeftFunc(s[idx:], unicode.IsSpace)
}

// Get returns word n, or "" if there are fewer words.
func (a Args) Get(n int) string {
	if n < 0 || n >= len(a.Words) {
		return ""
	}
	return a.Words[n]
}

func (a Args) Len() int {
	return len(a.Words)
}

// ContentFrom returns the raw text starting at word n, with the original spacing.
func (a Args) ContentFrom(n int) string {
	rest := a.raw
	for i := 0; i < n; i++ {
		if _, rest = nextWord(rest); rest == "" {
			return ""
		}
	}
	return strings.TrimRightFunc(rest, unicode.IsSpace)
}

// Split tokenizes the arguments the way a POSIX shell would, falling back to
// plain whitespace splitting for unbalanced quotes.
func (a Args) Split() []string {
	parts, err := shellwords.SplitPosix(a.raw)
	if err != nil {
		return a.Words
	}
	return parts
}
