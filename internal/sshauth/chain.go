package sshauth

import "golang.org/x/crypto/ssh"

// Credentials selects which strategy ssh_connect uses. Per §4.3, if a
// password is supplied the connection is password-only; else if a key
// path is supplied it is key-only; else the agent is used. There is no
// fallback across methods within one connect call.
type Credentials struct {
	Password   string
	KeyPath    string
	Passphrase string
	AgentSock  string
}

// Resolve builds the single ssh.AuthMethod to use for one connect call,
// per the precedence rule in §4.3.
func Resolve(creds Credentials) (ssh.AuthMethod, string, error) {
	switch {
	case creds.Password != "":
		return PasswordStrategy{Password: creds.Password}.Method(), "password", nil
	case creds.KeyPath != "":
		m, err := KeyFileStrategy{Path: creds.KeyPath, Passphrase: creds.Passphrase}.Method()
		return m, "key-file", err
	default:
		m, err := AgentStrategy{SocketPath: creds.AgentSock}.Method()
		return m, "agent", err
	}
}

// Chain composes strategies to try in order, stopping at the first one
// that builds successfully. It exists as a first-class combinator so
// callers/tests can inject synthetic strategies and future policy can
// compose fallbacks across methods; ssh_connect itself never uses it
// because §4.3 forbids cross-method fallback within a single connect.
type Chain []func() (ssh.AuthMethod, string, error)

// Resolve returns the first strategy's auth method that builds without
// error, or the last error if every strategy fails.
func (c Chain) Resolve() (ssh.AuthMethod, string, error) {
	var lastErr error
	var lastName string
	for _, build := range c {
		m, name, err := build()
		if err == nil {
			return m, name, nil
		}
		lastErr = err
		lastName = name
	}
	return nil, lastName, lastErr
}
