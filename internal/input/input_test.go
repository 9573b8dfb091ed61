package input

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/karlb/termstack/internal/stack"
	"github.com/karlb/termstack/internal/terminal"
)

func TestResolveSuperReturnSpawnsTerminal(t *testing.T) {
	cmd := Resolve(DefaultBindings(), tcell.KeyEnter, 0, tcell.ModMeta)
	if cmd.Type != CommandSpawnTerminal {
		t.Fatalf("expected CommandSpawnTerminal, got %v", cmd.Type)
	}
}

func TestResolveSuperJFocusesNext(t *testing.T) {
	cmd := Resolve(DefaultBindings(), tcell.KeyRune, 'j', tcell.ModMeta)
	if cmd.Type != CommandFocusNext {
		t.Fatalf("expected CommandFocusNext, got %v", cmd.Type)
	}
}

func TestResolveUnboundKeyForwardsToTerminal(t *testing.T) {
	cmd := Resolve(DefaultBindings(), tcell.KeyRune, 'a', 0)
	if cmd.Type != CommandForwardToTerminal {
		t.Fatalf("expected CommandForwardToTerminal, got %v", cmd.Type)
	}
}

func TestResolveWheelShiftForwardsToScrollback(t *testing.T) {
	if dir := ResolveWheel(tcell.ModShift); dir != ScrollTerminalScrollback {
		t.Fatalf("expected scrollback forwarding with shift held")
	}
	if dir := ResolveWheel(0); dir != ScrollColumn {
		t.Fatalf("expected column scroll without modifiers")
	}
}

func TestDispatchQuitReturnsTrue(t *testing.T) {
	s := stack.New(800, 600)
	terminals := terminal.NewManager(8, 16)
	quit := Dispatch(Command{Type: CommandQuit}, s, terminals, func(terminal.ID) bool { return true })
	if !quit {
		t.Fatalf("expected CommandQuit to report quit=true")
	}
}

func TestDispatchFocusNextMovesFocus(t *testing.T) {
	s := stack.New(800, 600)
	s.AddTerminal(terminal.ID(1))
	s.AddTerminal(terminal.ID(2))
	s.SetFocusByIndex(0)

	terminals := terminal.NewManager(8, 16)
	Dispatch(Command{Type: CommandFocusNext}, s, terminals, func(terminal.ID) bool { return true })

	if idx := s.FocusedIndex(); idx != 1 {
		t.Fatalf("expected focus to move to index 1, got %d", idx)
	}
}
