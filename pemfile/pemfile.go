// Package pemfile keeps the SSH host key of the server on disk.
package pemfile

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/zond/juicebot"

	gossh "golang.org/x/crypto/ssh"
)

type KeyParams struct {
	KeyPath       string
	SSHPubKeyPath string
}

// Generate writes a new ed25519 private key, and its public half in authorized_keys format.
func (k KeyParams) Generate() error {
	pubKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return juicebot.WithStack(err)
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return juicebot.WithStack(err)
	}
	if err := os.WriteFile(k.KeyPath, pem.EncodeToMemory(
		&pem.Block{
			Type:  "PRIVATE KEY",
			Bytes: keyBytes,
		}),
		0600,
	); err != nil {
		return juicebot.WithStack(err)
	}

	pub, err := gossh.NewPublicKey(pubKey)
	if err != nil {
		return juicebot.WithStack(err)
	}
	if err := os.WriteFile(k.SSHPubKeyPath, gossh.MarshalAuthorizedKey(pub), 0600); err != nil {
		return juicebot.WithStack(err)
	}
	return nil
}

// Signer returns the key at KeyPath, generating it first if it doesn't exist.
func (k KeyParams) Signer() (gossh.Signer, error) {
	pemBytes, err := os.ReadFile(k.KeyPath)
	if os.IsNotExist(err) {
		if err := k.Generate(); err != nil {
			return nil, err
		}
		if pemBytes, err = os.ReadFile(k.KeyPath); err != nil {
			return nil, juicebot.WithStack(err)
		}
	} else if err != nil {
		return nil, juicebot.WithStack(err)
	}
	signer, err := gossh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	return signer, nil
}
