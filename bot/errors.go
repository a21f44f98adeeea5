package bot

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotFound       = errors.New("not found")
	ErrShutdown       = errors.New("shutting down")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidCode    = errors.New("invalid code")
)

// ValidationError is returned before any state changes when a script name or code is unacceptable.
type ValidationError struct {
	Err    error
	Reason string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", v.Err, v.Reason)
}

func (v *ValidationError) Unwrap() error {
	return v.Err
}

// PersistenceError is returned when the script store fails.
type PersistenceError struct {
	Op  string
	Err error
}

func (p *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", p.Op, p.Err)
}

func (p *PersistenceError) Unwrap() error {
	return p.Err
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&PersistenceError{Op: op, Err: err})
}
