package lang

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/gertd/go-pluralize"
)

const (
	DefaultPattern   = "%s"
	DefaultSeparator = ","
	DefaultOperator  = "and"
)

var (
	pluralizer = pluralize.NewClient()
)

type Enumerator struct {
	Pattern   string
	Separator string
	Operator  string
}

func (e Enumerator) Do(elements ...string) string {
	pattern, separator, operator := DefaultPattern, DefaultSeparator, DefaultOperator
	if e.Pattern != "" {
		pattern = e.Pattern
	}
	if e.Separator != "" {
		separator = e.Separator
	}
	if e.Operator != "" {
		operator = e.Operator
	}
	res := &bytes.Buffer{}
	for idx, element := range elements {
		if idx+2 < len(elements) {
			fmt.Fprintf(res, fmt.Sprintf("%s%%s ", pattern), element, separator)
		} else if idx+1 < len(elements) {
			fmt.Fprintf(res, fmt.Sprintf("%s%%s %%s ", pattern), element, separator, operator)
		} else {
			fmt.Fprintf(res, pattern, element)
		}
	}
	return res.String()
}

func Plural(word string) string {
	return pluralizer.Plural(word)
}

func Singular(word string) string {
	return pluralizer.Singular(word)
}

// Count returns "1 command", "2 commands" and so on.
func Count(n int, word string) string {
	return pluralizer.Pluralize(word, n, true)
}

// Inflect returns word in the form matching n, without the number.
func Inflect(n int, word string) string {
	return pluralizer.Pluralize(word, n, false)
}

func Capitalize(s string) string {
	for idx, r := range s {
		return string(unicode.ToUpper(r)) + s[idx+len(string(r)):]
	}
	return s
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n < 1 {
		return ""
	}
	return strings.TrimRightFunc(string(runes[:n-1]), unicode.IsSpace) + "…"
}
