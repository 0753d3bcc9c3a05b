package sshauth

import "golang.org/x/crypto/ssh"

// PasswordStrategy submits a plain password. It is the simplest strategy
// in the chain and takes precedence when a caller supplies a password.
type PasswordStrategy struct {
	Password string
}

func (PasswordStrategy) Name() string { return "password" }

// Method returns the ssh.AuthMethod for this strategy.
func (p PasswordStrategy) Method() ssh.AuthMethod {
	return ssh.Password(p.Password)
}
