package sshauth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	path := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(path, der, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func TestResolvePrecedencePassword(t *testing.T) {
	method, name, err := Resolve(Credentials{Password: "hunter2", KeyPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "password" {
		t.Fatalf("expected password strategy, got %s", name)
	}
	if method == nil {
		t.Fatal("expected non-nil auth method")
	}
}

func TestResolvePrecedenceKeyFile(t *testing.T) {
	path := writeTestKey(t)
	method, name, err := Resolve(Credentials{KeyPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "key-file" {
		t.Fatalf("expected key-file strategy, got %s", name)
	}
	if method == nil {
		t.Fatal("expected non-nil auth method")
	}
}

func TestResolveAgentFailsWithoutSocket(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, name, err := Resolve(Credentials{})
	if err == nil {
		t.Fatal("expected error when no credentials and no agent socket")
	}
	if name != "agent" {
		t.Fatalf("expected agent strategy attempted, got %s", name)
	}
}

func TestKeyFileStrategyRejectsMissingFile(t *testing.T) {
	_, err := (KeyFileStrategy{Path: "/does/not/exist"}).Method()
	if err == nil {
		t.Fatal("expected error for missing key file")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
}

func TestNegotiateRSALeavesAlgorithmSignerUnwrapped(t *testing.T) {
	path := writeTestKey(t)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := signer.(ssh.AlgorithmSigner); !ok {
		t.Fatal("expected the parsed RSA key to implement ssh.AlgorithmSigner")
	}

	result := negotiateRSA(signer)
	if result != signer {
		t.Fatalf("expected negotiateRSA to return the signer unchanged so golang.org/x/crypto/ssh can pick the algorithm, got %T", result)
	}
}
