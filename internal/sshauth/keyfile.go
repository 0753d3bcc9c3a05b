package sshauth

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// KeyFileStrategy authenticates with a private key loaded from disk.
type KeyFileStrategy struct {
	Path       string
	Passphrase string
}

func (KeyFileStrategy) Name() string { return "key-file" }

// Method loads and parses the private key and returns the resulting
// public-key auth method, or a non-retryable AuthError if the key cannot
// be read or parsed.
func (k KeyFileStrategy) Method() (ssh.AuthMethod, error) {
	raw, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, &AuthError{Strategy: k.Name(), Err: fmt.Errorf("read key file: %w", err)}
	}

	var signer ssh.Signer
	if k.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, []byte(k.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(raw)
	}
	if err != nil {
		return nil, &AuthError{Strategy: k.Name(), Err: fmt.Errorf("parse key file: %w", err)}
	}

	return ssh.PublicKeys(negotiateRSA(signer)), nil
}
