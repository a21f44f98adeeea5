package lang

import (
	"testing"
)

func TestEnumerator(t *testing.T) {
	for _, tt := range []struct {
		enum     Enumerator
		input    []string
		expected string
	}{
		{Enumerator{}, nil, ""},
		{Enumerator{}, []string{"a"}, "a"},
		{Enumerator{}, []string{"a", "b"}, "a, and b"},
		{Enumerator{}, []string{"a", "b", "c"}, "a, b, and c"},
		{Enumerator{Pattern: "[%s]", Operator: "or"}, []string{"run", "stop"}, "[run], or [stop]"},
	} {
		if got := tt.enum.Do(tt.input...); got != tt.expected {
			t.Errorf("Do(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSingular(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"commands", "command"},
		{"listeners", "listener"},
		{"scripts", "script"},
		{"children", "child"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Singular(tt.input); got != tt.expected {
				t.Errorf("Singular(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPlural(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"command", "commands"},
		{"listener", "listeners"},
		{"script", "scripts"},
		{"child", "children"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Plural(tt.input); got != tt.expected {
				t.Errorf("Plural(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		n        int
		word     string
		expected string
	}{
		{0, "command", "0 commands"},
		{1, "command", "1 command"},
		{2, "listener", "2 listeners"},
	}
	for _, tt := range tests {
		if got := Count(tt.n, tt.word); got != tt.expected {
			t.Errorf("Count(%d, %q) = %q, want %q", tt.n, tt.word, got, tt.expected)
		}
	}
}

func TestInflect(t *testing.T) {
	if got := Inflect(1, "listener"); got != "listener" {
		t.Errorf("got %q", got)
	}
	if got := Inflect(3, "listener"); got != "listeners" {
		t.Errorf("got %q", got)
	}
}

func TestCapitalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"script", "Script"},
		{"hello world", "Hello world"},
		{"ALREADY", "ALREADY"},
		{"", ""},
		{"ärm", "Ärm"},
	}
	for _, tt := range tests {
		if got := Capitalize(tt.input); got != tt.expected {
			t.Errorf("Capitalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("got %q, want %q", got, "abcd…")
	}
}
