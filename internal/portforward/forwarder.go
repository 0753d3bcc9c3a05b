// Package portforward implements the local-to-remote TCP forwarding
// engine described in §4.8: an accept loop dispatching per-connection
// handler tasks that bridge a local socket and a remote direct-tcpip
// tunnel.
package portforward

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ahmetk3436/sshmcp/internal/sshclient"
)

// Forwarder is a running local listener bound to 127.0.0.1:local-port,
// per §3's Port forwarder data model.
type Forwarder struct {
	LocalAddress  string
	RemoteAddress string
	SessionID     string

	listener  net.Listener
	closeOnce sync.Once
}

// Open binds a TCP listener on 127.0.0.1:localPort and spawns the accept
// loop described in §4.8. If localPort is 0 the OS picks a free port;
// the actual bound address is reported back to the caller. Bind failures
// (including "address already in use") are surfaced verbatim, per the
// error taxonomy in §6.
func Open(handle *sshclient.Handle, sessionID string, localPort int, remoteHost string, remotePort int) (*Forwarder, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		return nil, fmt.Errorf("Failed to bind to local port %d: %w", localPort, err)
	}

	f := &Forwarder{
		LocalAddress:  listener.Addr().String(),
		RemoteAddress: fmt.Sprintf("%s:%d", remoteHost, remotePort),
		SessionID:     sessionID,
		listener:      listener,
	}

	go f.acceptLoop(handle, remoteHost, remotePort)
	return f, nil
}

// acceptLoop repeatedly accepts connections and spawns a handler task
// for each. It terminates on the first unrecoverable accept error (which
// includes the listener being closed by Close).
func (f *Forwarder) acceptLoop(handle *sshclient.Handle, remoteHost string, remotePort int) {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			slog.Debug("portforward: accept loop terminating", "local", f.LocalAddress, "err", err)
			return
		}
		go f.handle(conn, handle, remoteHost, remotePort)
	}
}

// handle opens a direct-tcpip channel for the accepted connection and
// bridges bytes bidirectionally until either side closes, per §4.8's
// "Handler task" contract.
func (f *Forwarder) handle(local net.Conn, handle *sshclient.Handle, remoteHost string, remotePort int) {
	defer local.Close()

	remoteAddr := fmt.Sprintf("%s:%d", remoteHost, remotePort)
	remote, err := handle.DialDirectTCPIP("tcp", remoteAddr)
	if err != nil {
		slog.Warn("portforward: failed to open direct-tcpip channel", "remote", remoteAddr, "err", err)
		return
	}
	defer remote.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(remote, local)
		if cw, ok := remote.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		io.Copy(local, remote)
		if cw, ok := local.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}()
	wg.Wait()
}

// Close stops the accept loop by closing the listener. Idempotent.
func (f *Forwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = f.listener.Close()
	})
	return err
}
