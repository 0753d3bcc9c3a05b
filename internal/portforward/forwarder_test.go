package portforward

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net"
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

// startFakeDirectTCPIPServer builds an in-process SSH client/server pair
// over loopback TCP whose server side accepts direct-tcpip channels and
// echoes back whatever bytes it receives, enough to exercise the
// forwarder's bidirectional bridging.
func startFakeDirectTCPIPServer(t *testing.T) *sshclient.Handle {
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
			if newChannel.ChannelType() != "direct-tcpip" {
				newChannel.Reject(ssh.UnknownChannelType, "unsupported")
				continue
			}
			channel, requests, err := newChannel.Accept()
			if err != nil {
				continue
			}
			go ssh.DiscardRequests(requests)
			go func() {
				defer channel.Close()
				io.Copy(channel, channel)
			}()
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

func TestForwarderBridgesBytesBothWays(t *testing.T) {
	handle := startFakeDirectTCPIPServer(t)

	f, err := Open(handle, "s1", 0, "127.0.0.1", 9999)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	conn, err := net.Dial("tcp", f.LocalAddress)
	if err != nil {
		t.Fatalf("dial local forwarder: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read echoed bytes: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected echoed ping, got %q", buf)
	}
}

func TestOpenFailsOnPortInUse(t *testing.T) {
	handle := startFakeDirectTCPIPServer(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	_, err = Open(handle, "s1", addr.Port, "127.0.0.1", 9999)
	if err == nil {
		t.Fatal("expected bind failure on already-in-use port")
	}
}

func TestRegistryRemoveSessionClosesForwarders(t *testing.T) {
	handle := startFakeDirectTCPIPServer(t)
	r := NewRegistry()

	f1, err := Open(handle, "s1", 0, "127.0.0.1", 9999)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r.Track("s1", f1)

	closed := r.RemoveSession("s1")
	if closed != 1 {
		t.Fatalf("expected 1 forwarder closed, got %d", closed)
	}

	// The listener should now be closed; dialing it should fail.
	if _, err := net.Dial("tcp", f1.LocalAddress); err == nil {
		t.Fatal("expected dial to closed forwarder to fail")
	}
}
