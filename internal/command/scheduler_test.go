package command

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ahmetk3436/sshmcp/internal/sshclient"
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

// startFakeSSHD spins up an in-process SSH server over a loopback TCP
// pair from netPipe that understands the "exec" request type well enough
// to drive the scheduler's select loop: it echoes canned output based on
// the command text and reports an exit-status of 0, unless the command
// contains "sleep", in which case it streams "tick\n" every 50 ms until a
// write fails.
func startFakeSSHD(t *testing.T) *sshclient.Handle {
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

	go func() {
		sc, chans, reqs, err := ssh.NewServerConn(serverConn, serverCfg)
		if err != nil {
			return
		}
		defer sc.Close()
		go ssh.DiscardRequests(reqs)
		for newChannel := range chans {
			if newChannel.ChannelType() != "session" {
				newChannel.Reject(ssh.UnknownChannelType, "unsupported")
				continue
			}
			channel, requests, err := newChannel.Accept()
			if err != nil {
				continue
			}
			go serveExecRequests(channel, requests)
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
	t.Cleanup(func() { client.Close() })

	return sshclient.NewHandle(client)
}

func serveExecRequests(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		ssh.Unmarshal(req.Payload, &payload)
		req.Reply(true, nil)

		if strings.Contains(payload.Command, "sleep") {
			// Block "indefinitely" (bounded by the test's own
			// timeout/cancel path); channel.Close() from the client
			// side unblocks the Write below with an error.
			for {
				if _, err := channel.Write([]byte("tick\n")); err != nil {
					return
				}
				time.Sleep(50 * time.Millisecond)
			}
		}

		fmt.Fprint(channel, "hi\n")
		statusPayload := struct{ Status uint32 }{Status: 0}
		channel.SendRequest("exit-status", false, ssh.Marshal(&statusPayload))
		return
	}
}

func TestSchedulerCompletesSuccessfully(t *testing.T) {
	handle := startFakeSSHD(t)
	cmd := newCommand("c1", "s1", "echo hi")

	Start(cmd, handle, 5*time.Second)

	deadline := time.After(2 * time.Second)
	for cmd.Status() == StatusRunning {
		select {
		case <-deadline:
			t.Fatal("command did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	snap := cmd.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (err=%s)", snap.Status, snap.Error)
	}
	if string(snap.Stdout) != "hi\n" {
		t.Fatalf("expected stdout %q, got %q", "hi\n", snap.Stdout)
	}
	if snap.ExitCode == nil || *snap.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", snap.ExitCode)
	}
	if snap.TimedOut {
		t.Fatal("expected timed_out=false")
	}
}

func TestSchedulerTimeoutPreservesPartialOutput(t *testing.T) {
	handle := startFakeSSHD(t)
	cmd := newCommand("c2", "s2", "sleep-forever")

	Start(cmd, handle, 120*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for cmd.Status() == StatusRunning {
		select {
		case <-deadline:
			t.Fatal("command did not time out in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	snap := cmd.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed (timeout still reports completed), got %s", snap.Status)
	}
	if !snap.TimedOut {
		t.Fatal("expected timed_out=true")
	}
	if snap.ExitCode == nil || *snap.ExitCode != -1 {
		t.Fatalf("expected exit code -1 on timeout, got %v", snap.ExitCode)
	}
	if len(snap.Stdout) == 0 {
		t.Fatal("expected some partial stdout to have been captured before timeout")
	}
}

func TestSchedulerCancelStopsRunningCommand(t *testing.T) {
	handle := startFakeSSHD(t)
	cmd := newCommand("c3", "s3", "sleep-forever")

	Start(cmd, handle, 0)
	time.Sleep(80 * time.Millisecond)
	cmd.Cancel()

	deadline := time.After(2 * time.Second)
	for cmd.Status() == StatusRunning {
		select {
		case <-deadline:
			t.Fatal("command did not observe cancellation in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := cmd.Status(); got != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
}

func TestStatusIsMonotonicOnceTerminal(t *testing.T) {
	cmd := newCommand("c4", "s4", "echo hi")
	cmd.status.Set(StatusCompleted)
	cmd.status.Set(StatusRunning) // must be ignored
	if got := cmd.Status(); got != StatusCompleted {
		t.Fatalf("expected status to stay Completed, got %s", got)
	}
}
