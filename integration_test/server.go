package integration_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/zond/juicebot/server"

	cryptossh "golang.org/x/crypto/ssh"
)

const (
	botName  = "bot"
	operator = "operator"
)

// TestServer wraps a server instance for testing.
type TestServer struct {
	*server.Server
	tmpDir         string
	sshListener    net.Listener
	operatorSigner cryptossh.Signer
}

// NewTestServer creates a new test server on a random port, with a freshly
// generated operator key.
func NewTestServer() (*TestServer, error) {
	tmpDir, err := os.MkdirTemp("", "juicebot-integration-*")
	if err != nil {
		return nil, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	signer, err := cryptossh.NewSignerFromKey(priv)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	keysPath := filepath.Join(tmpDir, "operator_keys")
	if err := os.WriteFile(keysPath, cryptossh.MarshalAuthorizedKey(signer.PublicKey()), 0600); err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	config := server.DefaultConfig()
	config.SSHAddr = "127.0.0.1:0"
	config.Dir = tmpDir
	config.BotName = botName
	config.Operator = operator
	config.OperatorKeys = keysPath
	config.ConfirmTimeout = 5 * time.Second

	srv, err := server.New(context.Background(), config)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	sshLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		srv.Close()
		os.RemoveAll(tmpDir)
		return nil, err
	}

	ts := &TestServer{
		Server:         srv,
		tmpDir:         tmpDir,
		sshListener:    sshLn,
		operatorSigner: signer,
	}

	go func() {
		srv.StartWithListener(sshLn)
	}()

	// Wait for server to be ready by polling the SSH port
	ready := waitForCondition(5*time.Second, 50*time.Millisecond, func() bool {
		conn, err := net.DialTimeout("tcp", ts.SSHAddr(), 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	})
	if !ready {
		ts.Close()
		return nil, fmt.Errorf("server did not become ready")
	}

	return ts, nil
}

// Close shuts down the test server and cleans up.
func (ts *TestServer) Close() {
	ts.Server.Close()
	os.RemoveAll(ts.tmpDir)
}

// SSHAddr returns the SSH address.
func (ts *TestServer) SSHAddr() string {
	return ts.sshListener.Addr().String()
}

// Operator connects as the operator, using the operator key.
func (ts *TestServer) Operator() (*terminalClient, error) {
	return newTerminalClient(ts.SSHAddr(), operator, cryptossh.PublicKeys(ts.operatorSigner))
}

// User connects as user, using a password.
func (ts *TestServer) User(user string) (*terminalClient, error) {
	return newTerminalClient(ts.SSHAddr(), user, cryptossh.Password("ignored"))
}

// waitForRunning polls until the named script is running or the timeout expires.
func (ts *TestServer) waitForRunning(name string, want bool, timeout time.Duration) bool {
	return waitForCondition(timeout, 50*time.Millisecond, func() bool {
		return ts.Bot().Running().Has(name) == want
	})
}
