package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/google/go-cmp/cmp"

	gossh "golang.org/x/crypto/ssh"
)

type fakeContext struct {
	ssh.Context
	user string
}

func (f fakeContext) User() string {
	return f.user
}

func newKey(t *testing.T) gossh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.Dir = t.TempDir()
	config.SSHAddr = "127.0.0.1:0"
	return config
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "juicebot.yaml")
	if err := os.WriteFile(path, []byte("bot_name: juice\noperator: boss\nrun_timeout: 2s\nfirst_wins: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JUICEBOT_OPERATOR", "chief")
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.BotName = "juice"
	want.Operator = "chief"
	want.RunTimeout = 2 * time.Second
	want.FirstWins = true
	if diff := cmp.Diff(config, want); diff != "" {
		t.Error(diff)
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("JUICEBOT_SSH_ADDR", "0.0.0.0:2222")
	config, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if config.SSHAddr != "0.0.0.0:2222" {
		t.Errorf("got %q, want 0.0.0.0:2222", config.SSHAddr)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("wanted error for missing file")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{"no bot name", func(c *Config) { c.BotName = "" }},
		{"no operator", func(c *Config) { c.Operator = "" }},
		{"operator is bot", func(c *Config) { c.Operator = c.BotName }},
		{"no dir", func(c *Config) { c.Dir = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.modify(&config)
			if err := config.Validate(); err == nil {
				t.Errorf("wanted error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
}

func TestNewSeedsFreshStore(t *testing.T) {
	ctx := context.Background()
	config := testConfig(t)
	s, err := New(ctx, config)
	if err != nil {
		t.Fatal(err)
	}
	script, err := s.Storage().Fetch(ctx, seedName)
	if err != nil {
		t.Fatal(err)
	}
	if script.Code != seedCode {
		t.Errorf("got %q, want %q", script.Code, seedCode)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening must not resurrect a deleted seed.
	s, err = New(ctx, config)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Storage().Delete(ctx, seedName); err != nil {
		t.Fatal(err)
	}
	s.Close()
	s, err = New(ctx, config)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if exists, err := s.Storage().Exists(ctx, seedName); err != nil || exists {
		t.Errorf("got %v, %v, wanted seed to stay deleted", exists, err)
	}
}

func TestAuthentication(t *testing.T) {
	operatorKey := newKey(t)
	config := testConfig(t)
	config.OperatorKeys = filepath.Join(config.Dir, "operator_keys")
	if err := os.WriteFile(config.OperatorKeys, gossh.MarshalAuthorizedKey(operatorKey), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := New(context.Background(), config)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	otherKey := newKey(t)
	as := func(user string) ssh.Context {
		return fakeContext{user: user}
	}
	for _, tc := range []struct {
		name string
		got  bool
		want bool
	}{
		{"operator with operator key", s.acceptPublicKey(as(config.Operator), operatorKey), true},
		{"operator with other key", s.acceptPublicKey(as(config.Operator), otherKey), false},
		{"operator with password", s.acceptPassword(as(config.Operator), "secret"), false},
		{"bot with key", s.acceptPublicKey(as(config.BotName), operatorKey), false},
		{"bot with password", s.acceptPassword(as(config.BotName), "secret"), false},
		{"user with key", s.acceptPublicKey(as("alice"), otherKey), true},
		{"user with password", s.acceptPassword(as("alice"), "secret"), true},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestOperatorKeysMustParse(t *testing.T) {
	config := testConfig(t)
	config.OperatorKeys = filepath.Join(config.Dir, "operator_keys")
	if err := os.WriteFile(config.OperatorKeys, []byte("not a key\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), config); err == nil {
		t.Errorf("wanted error for unparseable operator keys")
	}
}
