// Package stdio implements the line-delimited JSON-RPC style transport
// described in §5/§9 as an external collaborator: it reads one JSON
// request object per line from an input stream, dispatches it against a
// tool surface, and writes one JSON response object per line to an
// output stream. It carries no session/command/shell semantics of its
// own — that all lives in internal/mcp.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ahmetk3436/sshmcp/internal/mcp"
)

// Request is one line of input: a JSON-RPC-shaped envelope naming the
// tool to invoke and its parameters.
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one line of output.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject mirrors JSON-RPC's error shape closely enough for clients
// that expect it, while keeping Message as the exact §6 taxonomy string.
type ErrorObject struct {
	Message string `json:"message"`
}

// Server reads requests from r and writes responses to w until r is
// exhausted or ctx is cancelled.
type Server struct {
	tools map[string]mcp.ToolFunc
	in    *bufio.Scanner
	out   io.Writer
}

// NewServer builds a stdio server bound to svc's dispatch table.
func NewServer(svc *mcp.Service, r io.Reader, w io.Writer) *Server {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Server{tools: svc.Dispatch(), in: scanner, out: w}
}

// Serve blocks processing one request per line until the input stream
// ends or ctx is cancelled. Each request is handled synchronously and in
// order, so only one goroutine ever writes to stdout.
func (s *Server) Serve(ctx context.Context) error {
	for s.in.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, append([]byte(nil), line...))
	}
	return s.in.Err()
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(Response{Error: &ErrorObject{Message: fmt.Sprintf("invalid request: %v", err)}})
		return
	}

	tool, ok := s.tools[req.Method]
	if !ok {
		s.writeResponse(Response{ID: req.ID, Error: &ErrorObject{Message: fmt.Sprintf("unknown tool: %s", req.Method)}})
		return
	}

	result, err := tool(ctx, req.Params)
	if err != nil {
		s.writeResponse(Response{ID: req.ID, Error: &ErrorObject{Message: err.Error()}})
		return
	}
	s.writeResponse(Response{ID: req.ID, Result: result})
}

func (s *Server) writeResponse(resp Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		slog.Error("stdio: failed to marshal response", "err", err)
		return
	}
	body = append(body, '\n')
	if _, err := s.out.Write(body); err != nil {
		slog.Error("stdio: failed to write response", "err", err)
	}
}
