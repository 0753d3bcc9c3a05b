package sshclient

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Handle is the opaque, shareable representation of an authenticated SSH
// transport described in the GLOSSARY. It is owned by the session
// registry and shared (refcounted by Go's GC, not by an explicit
// refcount) with every command, shell and forwarder bound to the session.
// Operations that need exclusive access to the underlying *ssh.Client
// (opening a channel, disconnecting) serialize on mu; the client itself
// is safe for concurrent use by multiple goroutines once opened, so mu is
// held only for those critical sections (including the channel-open
// round trip), never while reading from or writing to an open channel.
type Handle struct {
	mu              sync.Mutex
	client          *ssh.Client
	closed          bool
	healthy         bool
	lastHealthCheck time.Time
	misses          int
	stopKeepalive   chan struct{}
}

// NewHandle wraps an already-dialed and authenticated *ssh.Client. The
// handle starts out healthy; StartKeepalive begins the periodic liveness
// probe described in §3's Session attributes (last-health-check time,
// healthy bit) and §4.4's always-on keepalive requirement.
func NewHandle(client *ssh.Client) *Handle {
	return &Handle{client: client, healthy: true, lastHealthCheck: time.Now()}
}

// StartKeepalive spawns a background goroutine that probes the transport
// every keepAliveInterval and marks the handle unhealthy after
// keepAliveMisses consecutive failures. It is idempotent: calling it more
// than once on the same handle has no additional effect.
func (h *Handle) StartKeepalive() {
	h.mu.Lock()
	if h.stopKeepalive != nil || h.closed {
		h.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	h.stopKeepalive = stop
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				err := h.SendKeepalive()
				h.mu.Lock()
				h.lastHealthCheck = time.Now()
				if err != nil {
					h.misses++
					if h.misses >= keepAliveMisses {
						h.healthy = false
					}
				} else {
					h.misses = 0
					h.healthy = true
				}
				h.mu.Unlock()
			}
		}
	}()
}

// Health reports the handle's last-health-check time and healthy bit, per
// §3's Session attributes.
func (h *Handle) Health() (lastCheck time.Time, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastHealthCheck, h.healthy
}

// NewSession opens an SSH session (the exec/PTY channel abstraction) on
// the handle. It locks the handle for the channel-open round trip to
// serialize channel creation with a concurrent Disconnect, and releases
// it before the caller does any I/O on the returned session.
func (h *Handle) NewSession() (*ssh.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("handle is closed")
	}
	client := h.client
	return client.NewSession()
}

// DialDirectTCPIP opens a direct-tcpip channel for port forwarding.
func (h *Handle) DialDirectTCPIP(network, remoteAddr string) (net.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("handle is closed")
	}
	return h.client.Dial(network, remoteAddr)
}

// SendKeepalive issues a no-op global request to verify liveness.
func (h *Handle) SendKeepalive() error {
	h.mu.Lock()
	client := h.client
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return fmt.Errorf("handle is closed")
	}
	_, _, err := client.SendRequest("keepalive@sshmcp", true, nil)
	return err
}

// Disconnect sends a best-effort "disconnect@sshmcp" global request (no
// reply awaited), then closes the underlying transport. No SSH protocol
// disconnect message is sent. It is idempotent: calling it twice is a
// no-op the second time.
func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.stopKeepalive != nil {
		close(h.stopKeepalive)
	}
	// Best-effort graceful disconnect message; the subsequent Close
	// tears down the TCP connection regardless of whether this succeeds.
	_, _, _ = h.client.SendRequest("disconnect@sshmcp", false, nil)
	return h.client.Close()
}
