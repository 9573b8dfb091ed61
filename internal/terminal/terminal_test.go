package terminal

import (
	"os"
	"testing"
	"time"

	"github.com/karlb/termstack/internal/visibility"
)

func skipIfCI(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("requires a real PTY")
	}
}

func TestSpawnShellIsAlwaysVisible(t *testing.T) {
	skipIfCI(t)
	m := NewManager(8, 16)
	term, err := m.Spawn("/bin/sh", 80)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer m.Remove(term.ID)

	if !term.IsVisible() {
		t.Fatalf("shell terminal should always be visible")
	}
	if term.ShowTitleBar {
		t.Fatalf("shell terminal should not show a title bar")
	}
}

func TestSpawnCommandWaitsForOutput(t *testing.T) {
	skipIfCI(t)
	m := NewManager(8, 16)
	term, err := m.SpawnCommand("echo hi", "/tmp", map[string]string{"SHELL": "/bin/sh"}, 80, nil)
	if err != nil {
		t.Fatalf("spawn command: %v", err)
	}
	defer m.Remove(term.ID)

	if term.IsVisible() {
		t.Fatalf("command terminal should be hidden before output")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !term.IsVisible() {
		m.ProcessAll()
		time.Sleep(20 * time.Millisecond)
	}
	if !term.IsVisible() {
		t.Fatalf("expected command terminal to become visible after output")
	}
}

func TestCommandThatExitsEmptyStaysHidden(t *testing.T) {
	skipIfCI(t)
	m := NewManager(8, 16)
	term, err := m.SpawnCommand("true", "/tmp", map[string]string{"SHELL": "/bin/sh"}, 80, nil)
	if err != nil {
		t.Fatalf("spawn command: %v", err)
	}
	defer m.Remove(term.ID)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !term.Exited() {
		m.ProcessAll()
		time.Sleep(20 * time.Millisecond)
	}
	if term.Visibility != visibility.ExitedEmpty {
		t.Fatalf("got %v want exited_empty", term.Visibility)
	}
	if term.IsVisible() {
		t.Fatalf("terminal that exited empty should not be visible")
	}
}

func TestCreateBuiltinIsImmediatelyVisible(t *testing.T) {
	m := NewManager(8, 16)
	term := m.CreateBuiltin("$", "cd /tmp", "", false, 80, nil)
	if !term.IsVisible() {
		t.Fatalf("builtin terminal should be immediately visible")
	}
	if !term.Exited() {
		t.Fatalf("builtin terminal has no process, should report exited")
	}
}

func TestCleanupRemovesExitedNonKeepOpen(t *testing.T) {
	skipIfCI(t)
	m := NewManager(8, 16)
	term, err := m.Spawn("/bin/sh", 80)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	term.KeepOpen = false
	term.exited = true

	m.Cleanup()
	if m.Get(term.ID) != nil {
		t.Fatalf("expected exited non-keep-open terminal to be removed")
	}
}

func TestCleanupKeepsCommandTerminalsOpen(t *testing.T) {
	m := NewManager(8, 16)
	term := m.CreateBuiltin("$", "ls", "file.txt", false, 80, nil)
	m.Cleanup()
	if m.Get(term.ID) == nil {
		t.Fatalf("keep-open terminal should survive cleanup")
	}
}
