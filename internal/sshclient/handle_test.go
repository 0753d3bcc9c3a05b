package sshclient

import (
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// netPipe returns a connected pair of loopback TCP connections. Unlike
// net.Pipe, these are backed by the kernel's socket buffers, so the SSH
// version-exchange (both sides writing before reading) does not deadlock.
func netPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverConn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return serverConn, clientConn
}

// newTestHandlePair spins up an in-process SSH client/server pair over a
// loopback TCP connection from netPipe, and returns a Handle wrapping the
// client side.
// The caller is responsible for closing the returned handle.
func newTestHandlePair(t *testing.T) *Handle {
	t.Helper()

	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	serverConn, clientConn := netPipe(t)

	serverCfg := &ssh.ServerConfig{NoClientAuth: true}
	serverCfg.AddHostKey(signer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc, chans, reqs, err := ssh.NewServerConn(serverConn, serverCfg)
		if err != nil {
			return
		}
		defer sc.Close()
		go ssh.DiscardRequests(reqs)
		for range chans {
		}
	}()

	clientCfg := &ssh.ClientConfig{
		User:            "operator",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Auth:            []ssh.AuthMethod{ssh.Password("")},
		Timeout:         2 * time.Second,
	}
	cc, chans, reqs, err := ssh.NewClientConn(clientConn, "pipe", clientCfg)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	client := ssh.NewClient(cc, chans, reqs)

	t.Cleanup(func() { <-done })

	return NewHandle(client)
}

func TestHandleDisconnectIdempotent(t *testing.T) {
	h := newTestHandlePair(t)
	if err := h.Disconnect(); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := h.Disconnect(); err != nil {
		t.Fatalf("second disconnect should be a no-op, got: %v", err)
	}
}

func TestHandleOperationsFailAfterDisconnect(t *testing.T) {
	h := newTestHandlePair(t)
	if err := h.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := h.NewSession(); err == nil {
		t.Fatal("expected NewSession to fail on a closed handle")
	}
	if _, err := h.DialDirectTCPIP("tcp", "example.invalid:80"); err == nil {
		t.Fatal("expected DialDirectTCPIP to fail on a closed handle")
	}
	if err := h.SendKeepalive(); err == nil {
		t.Fatal("expected SendKeepalive to fail on a closed handle")
	}
}

func TestHandleHealthStartsHealthy(t *testing.T) {
	h := newTestHandlePair(t)
	defer h.Disconnect()

	lastCheck, healthy := h.Health()
	if !healthy {
		t.Fatal("expected newly-created handle to start healthy")
	}
	if lastCheck.IsZero() {
		t.Fatal("expected last-health-check time to be set at creation")
	}
}

func TestHandleStartKeepaliveIdempotent(t *testing.T) {
	h := newTestHandlePair(t)
	defer h.Disconnect()

	h.StartKeepalive()
	h.StartKeepalive()

	if h.stopKeepalive == nil {
		t.Fatal("expected keepalive goroutine channel to be set")
	}
}
