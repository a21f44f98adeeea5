// Package server wires storage, the chat room and the bot together behind an SSH server.
package server

import (
	"context"
	"log"
	"net"
	"os"
	"sync"

	"github.com/gliderlabs/ssh"
	"github.com/pkg/errors"
	"github.com/zond/juicebot"
	"github.com/zond/juicebot/bot"
	"github.com/zond/juicebot/chat"
	"github.com/zond/juicebot/js"
	"github.com/zond/juicebot/pemfile"
	"github.com/zond/juicebot/storage"
	"github.com/zond/juicebot/storage/dbm"

	gossh "golang.org/x/crypto/ssh"
)

const (
	seedName = "$test"
	seedCode = `command("test", (msg) => send("Test script reporting in, " + msg.author + "!"));`
)

type Server struct {
	config       Config
	store        *storage.Storage
	kv           *dbm.Hash
	room         *chat.Room
	bot          *bot.Bot
	signer       gossh.Signer
	operatorKeys []gossh.PublicKey

	mutex     sync.Mutex
	sshServer *ssh.Server
	closeOnce sync.Once
	done      chan struct{}
}

func New(ctx context.Context, config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, juicebot.WithStack(err)
	}
	if err := os.MkdirAll(config.Dir, 0700); err != nil {
		return nil, juicebot.WithStack(err)
	}
	s := &Server{
		config: config,
		done:   make(chan struct{}),
	}
	var err error
	if s.signer, err = (pemfile.KeyParams{
		KeyPath:       config.hostKeyPath(),
		SSHPubKeyPath: config.hostPubKeyPath(),
	}).Signer(); err != nil {
		return nil, juicebot.WithStack(err)
	}
	if config.OperatorKeys != "" {
		if s.operatorKeys, err = readAuthorizedKeys(config.OperatorKeys); err != nil {
			return nil, juicebot.WithStack(err)
		}
	}
	if s.store, err = storage.New(ctx, config.scriptsPath()); err != nil {
		return nil, juicebot.WithStack(err)
	}
	if s.store.Fresh() {
		if _, err := s.store.Upsert(ctx, seedName, seedCode); err != nil {
			s.store.Close()
			return nil, juicebot.WithStack(err)
		}
	}
	if s.kv, err = dbm.OpenHash(config.storagePath()); err != nil {
		s.store.Close()
		return nil, juicebot.WithStack(err)
	}
	s.room = chat.NewRoom(config.BotName, config.MessageTTL)
	policy := bot.FireAll
	if config.FirstWins {
		policy = bot.FirstWins
	}
	if s.bot, err = bot.New(s.room, s.store, bot.Options{
		Operator:       config.Operator,
		RunTimeout:     config.RunTimeout,
		HandlerTimeout: config.HandlerTimeout,
		ConfirmTimeout: config.ConfirmTimeout,
		Policy:         policy,
		Storage: func(script string) js.Storage {
			return s.kv.Namespace(script)
		},
		Shutdown: func() {
			go s.Close()
		},
	}); err != nil {
		s.kv.Close()
		s.store.Close()
		return nil, juicebot.WithStack(err)
	}
	s.bot.Start()
	return s, nil
}

func readAuthorizedKeys(path string) ([]gossh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	result := []gossh.PublicKey{}
	for len(data) > 0 {
		key, _, _, rest, err := gossh.ParseAuthorizedKey(data)
		if err != nil {
			if len(result) == 0 {
				return nil, errors.Wrapf(err, "parsing %q", path)
			}
			break
		}
		result = append(result, key)
		data = rest
	}
	return result, nil
}

func (s *Server) Bot() *bot.Bot {
	return s.bot
}

func (s *Server) Room() *chat.Room {
	return s.room
}

func (s *Server) Storage() *storage.Storage {
	return s.store
}

func (s *Server) isOperatorKey(key ssh.PublicKey) bool {
	for _, operatorKey := range s.operatorKeys {
		if ssh.KeysEqual(key, operatorKey) {
			return true
		}
	}
	return false
}

func (s *Server) acceptPublicKey(ctx ssh.Context, key ssh.PublicKey) bool {
	switch ctx.User() {
	case s.config.BotName:
		return false
	case s.config.Operator:
		return s.isOperatorKey(key)
	}
	return true
}

func (s *Server) acceptPassword(ctx ssh.Context, _ string) bool {
	switch ctx.User() {
	case s.config.BotName, s.config.Operator:
		return false
	}
	return true
}

// Start listens on the configured address and serves until Close is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.SSHAddr)
	if err != nil {
		return juicebot.WithStack(err)
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves SSH on ln until Close is called.
func (s *Server) StartWithListener(ln net.Listener) error {
	sshServer := &ssh.Server{
		Handler:          s.room.HandleSession,
		PublicKeyHandler: s.acceptPublicKey,
		PasswordHandler:  s.acceptPassword,
	}
	sshServer.AddHostKey(s.signer)
	s.mutex.Lock()
	s.sshServer = sshServer
	s.mutex.Unlock()

	log.Printf("Serving SSH on %q with host key %q", ln.Addr(), gossh.FingerprintSHA256(s.signer.PublicKey()))
	if err := sshServer.Serve(ln); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return juicebot.WithStack(err)
	}
	<-s.done
	return nil
}

// Done is closed when the server has been closed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close stops every running script, closes the SSH server and the databases.
func (s *Server) Close() error {
	var result error
	s.closeOnce.Do(func() {
		s.bot.Close()
		s.bot.StopAll()
		s.mutex.Lock()
		if s.sshServer != nil {
			if err := s.sshServer.Close(); err != nil {
				result = juicebot.WithStack(err)
			}
		}
		s.mutex.Unlock()
		if err := s.kv.Close(); err != nil && result == nil {
			result = err
		}
		if err := s.store.Close(); err != nil && result == nil {
			result = err
		}
		close(s.done)
	})
	return result
}
