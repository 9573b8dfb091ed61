package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"
)

type fakeHandler struct {
	spawned  []SpawnRequest
	builtins []BuiltinRequest
	resizes  []ResizeMode
}

func (f *fakeHandler) Spawn(req SpawnRequest)     { f.spawned = append(f.spawned, req) }
func (f *fakeHandler) Builtin(req BuiltinRequest)  { f.builtins = append(f.builtins, req) }
func (f *fakeHandler) Resize(mode ResizeMode) error {
	f.resizes = append(f.resizes, mode)
	return nil
}
func (f *fakeHandler) QueryWindows() (json.RawMessage, error) {
	return json.RawMessage(`[{"kind":"terminal","id":1}]`), nil
}

func startTestServer(t *testing.T, h Handler) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termstack.sock")
	srv, err := Listen(path, h)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv, path
}

func send(t *testing.T, path string, payload map[string]any) string {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return ""
	}
	return scanner.Text()
}

func TestSpawnRequestDispatches(t *testing.T) {
	h := &fakeHandler{}
	_, path := startTestServer(t, h)

	send(t, path, map[string]any{
		"type":    "spawn",
		"command": "git status",
		"cwd":     "/home/user/project",
		"prompt":  "user@host",
	})

	time.Sleep(50 * time.Millisecond)
	if len(h.spawned) != 1 {
		t.Fatalf("expected one spawn request, got %d", len(h.spawned))
	}
	if h.spawned[0].Command != "git status" || h.spawned[0].Cwd != "/home/user/project" {
		t.Fatalf("unexpected spawn request: %+v", h.spawned[0])
	}
}

func TestResizeRequestGetsAck(t *testing.T) {
	h := &fakeHandler{}
	_, path := startTestServer(t, h)

	resp := send(t, path, map[string]any{"type": "resize", "mode": "content"})
	if resp != "ok" {
		t.Fatalf("expected ok ack, got %q", resp)
	}
	if len(h.resizes) != 1 || h.resizes[0] != ResizeContent {
		t.Fatalf("expected content resize recorded, got %+v", h.resizes)
	}
}

func TestQueryWindowsReturnsJSON(t *testing.T) {
	h := &fakeHandler{}
	_, path := startTestServer(t, h)

	resp := send(t, path, map[string]any{"type": "query_windows"})
	if resp != `[{"kind":"terminal","id":1}]` {
		t.Fatalf("unexpected query_windows response: %q", resp)
	}
}

func TestBuiltinRequestDispatches(t *testing.T) {
	h := &fakeHandler{}
	_, path := startTestServer(t, h)

	send(t, path, map[string]any{
		"type":    "builtin",
		"prompt":  "user@host",
		"command": "cd /tmp",
		"result":  "",
		"success": true,
	})

	time.Sleep(50 * time.Millisecond)
	if len(h.builtins) != 1 || h.builtins[0].Command != "cd /tmp" {
		t.Fatalf("unexpected builtin requests: %+v", h.builtins)
	}
}

func TestUnknownMessageTypeReportsError(t *testing.T) {
	h := &fakeHandler{}
	_, path := startTestServer(t, h)

	resp := send(t, path, map[string]any{"type": "bogus"})
	if resp == "" || resp[:6] != "error:" {
		t.Fatalf("expected error response, got %q", resp)
	}
}
