package httpapi

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/ahmetk3436/sshmcp/internal/mcp"
	"github.com/ahmetk3436/sshmcp/internal/shellsvc"
)

// shellBridgeHandler streams an already-open shell (opened via
// ssh_shell_open) over a websocket connection, pumping shellsvc.Shell's
// drain-on-read buffer in both directions.
type shellBridgeHandler struct {
	svc *mcp.Service
}

func newShellBridgeHandler(svc *mcp.Service) *shellBridgeHandler {
	return &shellBridgeHandler{svc: svc}
}

func (h *shellBridgeHandler) upgradeCheck(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

const shellPollInterval = 50 * time.Millisecond

func (h *shellBridgeHandler) handle() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		shellID := c.Params("id")

		if _, err := h.svc.ShellRead(shellID); err != nil {
			c.WriteMessage(websocket.TextMessage, []byte("Error: "+err.Error()))
			return
		}

		done := make(chan struct{})

		go h.pumpShellToSocket(c, shellID, done)
		h.pumpSocketToShell(c, shellID)
		<-done
	})
}

// pumpShellToSocket polls the shell's drain-on-read buffer and forwards
// new bytes to the client until the shell closes or the socket errors.
func (h *shellBridgeHandler) pumpShellToSocket(c *websocket.Conn, shellID string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(shellPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		resp, err := h.svc.ShellRead(shellID)
		if err != nil {
			return
		}
		if len(resp.Data) > 0 {
			if err := c.WriteMessage(websocket.TextMessage, []byte(resp.Data)); err != nil {
				return
			}
		}
		if resp.Status == string(shellsvc.StatusClosed) {
			return
		}
	}
}

// pumpSocketToShell reads client frames and writes them to the shell's
// stdin, discarding resize control messages since the shell registry
// has no resize operation to act on them.
func (h *shellBridgeHandler) pumpSocketToShell(c *websocket.Conn, shellID string) {
	for {
		msgType, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		var ctrl struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &ctrl) == nil && ctrl.Type == "resize" {
			continue
		}

		if _, err := h.svc.ShellWrite(shellID, string(msg)); err != nil {
			slog.Warn("httpapi: shell write failed", "shell_id", shellID, "err", err)
			return
		}
	}
}
