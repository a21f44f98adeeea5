package bot

import (
	"fmt"
	"regexp"

	"github.com/zond/juicebot"
)

const (
	maxNameLength = 40
	maxCodeLength = 16384
)

var (
	validNameRE = regexp.MustCompile(fmt.Sprintf("^[^\\s`]{1,%d}$", maxNameLength))
)

func validateName(name string) error {
	if !validNameRE.MatchString(name) {
		return juicebot.WithStack(&ValidationError{
			Err:    ErrInvalidName,
			Reason: fmt.Sprintf("names must be 1-%d characters without whitespace or backticks", maxNameLength),
		})
	}
	if name == evalName {
		return juicebot.WithStack(&ValidationError{
			Err:    ErrInvalidName,
			Reason: fmt.Sprintf("%q is reserved for eval", evalName),
		})
	}
	return nil
}

func validateCode(code string) error {
	if code == "" {
		return juicebot.WithStack(&ValidationError{Err: ErrInvalidCode, Reason: "a script needs code"})
	}
	if len(code) > maxCodeLength {
		return juicebot.WithStack(&ValidationError{Err: ErrInvalidCode, Reason: "code is longer than 16384 bytes"})
	}
	return nil
}
