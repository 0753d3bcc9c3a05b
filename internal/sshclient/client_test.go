package sshclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ahmetk3436/sshmcp/internal/sshauth"
)

func TestBuildClientConfigUsesPasswordAuth(t *testing.T) {
	req := ConnectRequest{
		Username:       "operator",
		Credentials:    sshauth.Credentials{Password: "hunter2"},
		ConnectTimeout: time.Second,
	}
	cfg, authName, err := buildClientConfig(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authName != "password" {
		t.Fatalf("expected password strategy, got %s", authName)
	}
	if cfg.User != "operator" {
		t.Fatalf("expected user to be threaded through, got %q", cfg.User)
	}
	if len(cfg.Auth) != 1 {
		t.Fatalf("expected exactly one auth method, got %d", len(cfg.Auth))
	}
}

func TestBuildClientConfigPropagatesCredentialErrors(t *testing.T) {
	req := ConnectRequest{
		Username:    "operator",
		Credentials: sshauth.Credentials{KeyPath: "/does/not/exist"},
	}
	_, authName, err := buildClientConfig(req)
	if err == nil {
		t.Fatal("expected error for missing key file")
	}
	if authName != "key-file" {
		t.Fatalf("expected key-file strategy name even on failure, got %s", authName)
	}
}

func TestConnectToRefusedPortFailsAfterRetries(t *testing.T) {
	// 127.0.0.1:1 is not a listening port; the dial will be refused
	// immediately. A refusal is retryable, so both attempts run, and the
	// retry loop should still terminate quickly within the context
	// deadline rather than hang.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req := ConnectRequest{
		Address:        "127.0.0.1:1",
		Username:       "operator",
		Credentials:    sshauth.Credentials{Password: "hunter2"},
		ConnectTimeout: 200 * time.Millisecond,
		MaxRetries:     1,
		RetryDelay:     10 * time.Millisecond,
	}
	_, err := Connect(ctx, req)
	if err == nil {
		t.Fatal("expected connect to an unreachable port to fail")
	}
	if !strings.Contains(err.Error(), "SSH connection failed") {
		t.Fatalf("expected wrapped connect-failure message, got: %v", err)
	}
}

func TestConnectSurfacesAuthRejectionAfterExactlyOneAttempt(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	attempts := 0
	serverCfg := &ssh.ServerConfig{
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			attempts++
			return nil, errors.New("invalid credentials")
		},
	}
	serverCfg.AddHostKey(signer)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				ssh.NewServerConn(conn, serverCfg)
			}()
		}
	}()

	req := ConnectRequest{
		Address:        listener.Addr().String(),
		Username:       "operator",
		Credentials:    sshauth.Credentials{Password: "wrong-password"},
		ConnectTimeout: time.Second,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}
	_, err = Connect(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}
	if !strings.Contains(err.Error(), "authentication failed") {
		t.Fatalf("expected error text to include 'authentication failed', got: %v", err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("after %d attempt", 1)) {
		t.Fatalf("expected rejected credentials to stop after exactly one attempt, got: %v", err)
	}
}

func TestConnectRejectsUnparsableAddress(t *testing.T) {
	req := ConnectRequest{
		Address:     "not a valid address::::",
		Username:    "operator",
		Credentials: sshauth.Credentials{Password: "hunter2"},
		MaxRetries:  0,
	}
	_, err := Connect(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for unparsable address")
	}
}
