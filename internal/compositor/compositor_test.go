package compositor

import (
	"testing"
	"time"

	"github.com/karlb/termstack/internal/config"
	"github.com/karlb/termstack/internal/ipc"
	"github.com/karlb/termstack/internal/stack"
	"github.com/karlb/termstack/internal/visibility"
)

func TestNewSpawnsLoginShell(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(c.Stack.LayoutNodes) != 1 {
		t.Fatalf("expected 1 layout node, got %d", len(c.Stack.LayoutNodes))
	}
	if _, ok := c.Stack.FocusedTerminal(); !ok {
		t.Fatalf("expected the login shell to be focused")
	}
}

func TestTickSyncsTerminalHeights(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Tick()

	id, _ := c.Stack.FocusedTerminal()
	term := c.Terminals.Get(id)
	_, wantHeight := term.PixelSize()

	if got := c.Stack.LayoutNodes[0].Height; got != int32(wantHeight) {
		t.Fatalf("layout node height = %d, want %d", got, wantHeight)
	}
}

// TestSpawnIsQueuedUntilTick confirms Spawn only mutates Stack/
// Terminals once Tick drains the pending queue, never immediately
// from the calling goroutine.
func TestSpawnIsQueuedUntilTick(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Spawn(ipc.SpawnRequest{Command: "echo hi", Cwd: "/tmp"})
	if len(c.Stack.LayoutNodes) != 1 {
		t.Fatalf("expected spawn to stay queued before Tick, got %d nodes", len(c.Stack.LayoutNodes))
	}

	c.Tick()
	if len(c.Stack.LayoutNodes) != 2 {
		t.Fatalf("expected 2 layout nodes after spawn drains, got %d", len(c.Stack.LayoutNodes))
	}
}

func TestBuiltinIsQueuedUntilTick(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Builtin(ipc.BuiltinRequest{Prompt: "$", Command: "cd /tmp", Result: "", Success: true})
	if len(c.Stack.LayoutNodes) != 1 {
		t.Fatalf("expected builtin to stay queued before Tick, got %d nodes", len(c.Stack.LayoutNodes))
	}

	c.Tick()
	if len(c.Stack.LayoutNodes) != 2 {
		t.Fatalf("expected 2 layout nodes after builtin drains, got %d", len(c.Stack.LayoutNodes))
	}
}

// TestResizeBlocksUntilTickDrainsQueue confirms Resize, called from a
// separate goroutine the way the IPC server does, only returns once a
// concurrent Tick applies it — the same synchronization the socket
// handler and the frame loop rely on.
func TestResizeBlocksUntilTickDrainsQueue(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Resize(ipc.ResizeContent) }()

	select {
	case <-errCh:
		t.Fatalf("Resize returned before any Tick drained it")
	case <-time.After(20 * time.Millisecond):
	}

	c.Tick()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Resize: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Resize never returned after Tick drained the queue")
	}
}

func TestResizeWithNoFocusedTerminalErrors(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Stack.ClearFocus()

	if err := c.applyResize(ipc.ResizeFull); err == nil {
		t.Fatalf("expected an error with no terminal focused")
	}
}

func TestQueryWindowsReportsLayoutNodes(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := c.buildQueryWindows()
	if err != nil {
		t.Fatalf("buildQueryWindows: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty JSON response")
	}
}

// TestGUISpawnHidesLauncherAndPairsOnMap exercises the foreground
// GUI-launch contract end to end: the launching terminal is hidden as
// soon as the spawn is applied, and PairGUIWindow fills in the
// OutputTerminal/IsForegroundGui fields the eventual toplevel needs.
func TestGUISpawnHidesLauncherAndPairsOnMap(t *testing.T) {
	c, err := New(config.Default(), "/bin/sh", 80, 8, 16, 800, 600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	launcherID, _ := c.Stack.FocusedTerminal()

	c.Spawn(ipc.SpawnRequest{Command: "true", Foreground: true, IsGUI: true})
	c.Tick()

	launcher := c.Terminals.Get(launcherID)
	if launcher.Visibility != visibility.HiddenForForegroundGui {
		t.Fatalf("expected launcher hidden for foreground gui, got %v", launcher.Visibility)
	}

	entry := &stack.ExternalEntry{Command: "true"}
	if !c.PairGUIWindow(entry) {
		t.Fatalf("expected PairGUIWindow to match the pending launch")
	}
	if entry.OutputTerminal == nil || *entry.OutputTerminal != launcherID {
		t.Fatalf("expected OutputTerminal = %v, got %+v", launcherID, entry.OutputTerminal)
	}
	if !entry.IsForegroundGui {
		t.Fatalf("expected IsForegroundGui set")
	}

	c.OnGUIWindowClosed(entry.OutputTerminal, entry.IsForegroundGui)
	if launcher.Visibility != visibility.AlwaysVisible {
		t.Fatalf("expected launcher restored after gui window closed, got %v", launcher.Visibility)
	}
}
