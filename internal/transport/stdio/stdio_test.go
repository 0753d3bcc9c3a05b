package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ahmetk3436/sshmcp/internal/mcp"
)

func TestServeDispatchesUnknownTool(t *testing.T) {
	svc := mcp.NewService(nil)
	in := strings.NewReader(`{"id":"1","method":"nope","params":{}}` + "\n")
	var out bytes.Buffer

	srv := NewServer(svc, in, &out)
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Message != "unknown tool: nope" {
		t.Fatalf("expected unknown-tool error, got %+v", resp)
	}
}

func TestServeReturnsNotFoundErrorForRealTool(t *testing.T) {
	svc := mcp.NewService(nil)
	in := strings.NewReader(`{"id":"1","method":"ssh_execute","params":{"session_id":"nope","command":"echo hi"}}` + "\n")
	var out bytes.Buffer

	srv := NewServer(svc, in, &out)
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Message != "No active SSH session with ID: nope" {
		t.Fatalf("expected session-not-found error, got %+v", resp)
	}
}

func TestServeRejectsMalformedJSON(t *testing.T) {
	svc := mcp.NewService(nil)
	in := strings.NewReader("not json\n")
	var out bytes.Buffer

	srv := NewServer(svc, in, &out)
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || !strings.HasPrefix(resp.Error.Message, "invalid request:") {
		t.Fatalf("expected invalid-request error, got %+v", resp)
	}
}
