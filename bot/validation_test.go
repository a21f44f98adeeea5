package bot

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestValidateName(t *testing.T) {
	for _, tc := range []struct {
		name  string
		valid bool
	}{
		{"echo42", true},
		{"$test", true},
		{"a", true},
		{strings.Repeat("a", maxNameLength), true},
		{strings.Repeat("a", maxNameLength+1), false},
		{"", false},
		{"two words", false},
		{"back`tick", false},
		{evalName, false},
		{"$evaluate", true},
	} {
		err := validateName(tc.name)
		if tc.valid && err != nil {
			t.Errorf("%q: got %v, want nil", tc.name, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q: got %v, want %v", tc.name, err, ErrInvalidName)
		}
	}
}

func TestValidateCode(t *testing.T) {
	if err := validateCode("send('hi')"); err != nil {
		t.Errorf("got %v", err)
	}
	if err := validateCode(""); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want %v", err, ErrInvalidCode)
	}
	verr := &ValidationError{}
	if err := validateCode(strings.Repeat("x", maxCodeLength+1)); !errors.As(err, &verr) {
		t.Errorf("got %v, want a *ValidationError", err)
	}
}
