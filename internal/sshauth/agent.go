package sshauth

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AgentStrategy authenticates via the local ssh-agent, trying every
// identity the agent offers until the server accepts one. RSA identities
// get the same hash-algorithm negotiation as KeyFileStrategy.
type AgentStrategy struct {
	// SocketPath overrides SSH_AUTH_SOCK; empty means "use the env var".
	SocketPath string
}

func (AgentStrategy) Name() string { return "agent" }

// Method dials the agent socket, enumerates identities and returns a
// public-key-with-agent auth method that will try each identity in turn.
// It fails (non-retryable) if the agent cannot be reached or has no
// identities; whether the server accepts one of them is only known once
// the handshake runs.
func (a AgentStrategy) Method() (ssh.AuthMethod, error) {
	sock := a.SocketPath
	if sock == "" {
		sock = os.Getenv("SSH_AUTH_SOCK")
	}
	if sock == "" {
		return nil, &AuthError{Strategy: a.Name(), Err: fmt.Errorf("SSH_AUTH_SOCK is not set")}
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, &AuthError{Strategy: a.Name(), Err: fmt.Errorf("dial agent socket: %w", err)}
	}

	client := agent.NewClient(conn)
	identities, err := client.List()
	if err != nil {
		conn.Close()
		return nil, &AuthError{Strategy: a.Name(), Err: fmt.Errorf("list agent identities: %w", err)}
	}
	if len(identities) == 0 {
		conn.Close()
		return nil, &AuthError{Strategy: a.Name(), Err: fmt.Errorf("agent has no identities")}
	}

	signers, err := client.Signers()
	if err != nil {
		conn.Close()
		return nil, &AuthError{Strategy: a.Name(), Err: fmt.Errorf("load agent signers: %w", err)}
	}

	negotiated := make([]ssh.Signer, len(signers))
	for i, s := range signers {
		negotiated[i] = negotiateRSA(s)
	}

	return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		return negotiated, nil
	}), nil
}
