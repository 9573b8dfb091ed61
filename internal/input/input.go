// Package input translates keyboard and pointer events into compositor
// commands: the default keyBinding table, scroll-wheel forwarding
// rules, and the central dispatch point that applies a resolved
// Command against the stack/terminal state, mirroring the
// action-enum-plus-dispatch shape used elsewhere in this codebase for
// central event handling.
package input

import (
	"github.com/gdamore/tcell/v2"

	"github.com/karlb/termstack/internal/stack"
	"github.com/karlb/termstack/internal/terminal"
	"github.com/karlb/termstack/internal/vtemu"
)

// CommandType identifies the kind of compositor-level command a key
// or pointer event resolved to.
type CommandType int

const (
	CommandNone CommandType = iota
	CommandSpawnTerminal
	CommandFocusNext
	CommandFocusPrev
	CommandQuit
	CommandScrollUp
	CommandScrollDown
	CommandScrollHome
	CommandScrollEnd
	CommandScrollPageUp
	CommandScrollPageDown
	CommandForwardToTerminal
)

// Command is a fully resolved compositor action, ready for Dispatch.
type Command struct {
	Type CommandType

	// Key/Rune/Mods populated for CommandForwardToTerminal, passed
	// through to vtemu.EncodeKey for the focused terminal.
	Key  tcell.Key
	Rune rune
	Mods tcell.ModMask
}

// pageScrollFraction is how much of the viewport height PgUp/PgDn
// scroll, matching the "≈90%" default keyBinding.
const pageScrollFraction = 0.9

// lineScrollAmount is how many content pixels a single Super+Arrow
// scroll step moves, matching a few terminal rows' worth of motion.
const lineScrollAmount = 60

// Binding pairs a key chord with the command it produces.
type Binding struct {
	key  tcell.Key
	rune rune
	mods tcell.ModMask
	cmd  CommandType
}

// DefaultBindings returns the compositor's built-in keyBinding table:
// Super+Return spawns a terminal, Super+J/K move focus, Super+Q quits,
// Super+Up/Down/Home/End scroll the column, and PgUp/PgDn (with no
// modifier) scroll it by a page.
func DefaultBindings() []Binding {
	const super = tcell.ModMeta
	return []Binding{
		{key: tcell.KeyEnter, mods: super, cmd: CommandSpawnTerminal},
		{key: tcell.KeyRune, rune: 'j', mods: super, cmd: CommandFocusNext},
		{key: tcell.KeyRune, rune: 'k', mods: super, cmd: CommandFocusPrev},
		{key: tcell.KeyRune, rune: 'q', mods: super, cmd: CommandQuit},
		{key: tcell.KeyUp, mods: super, cmd: CommandScrollUp},
		{key: tcell.KeyDown, mods: super, cmd: CommandScrollDown},
		{key: tcell.KeyHome, mods: super, cmd: CommandScrollHome},
		{key: tcell.KeyEnd, mods: super, cmd: CommandScrollEnd},
		{key: tcell.KeyPgUp, cmd: CommandScrollPageUp},
		{key: tcell.KeyPgDn, cmd: CommandScrollPageDown},
	}
}

// Resolve matches a raw key event against the keyBinding table,
// falling back to forwarding the keystroke to the focused terminal
// when nothing matches.
func Resolve(Bindings []Binding, key tcell.Key, r rune, mods tcell.ModMask) Command {
	for _, b := range Bindings {
		if b.key != key {
			continue
		}
		if b.key == tcell.KeyRune && b.rune != r {
			continue
		}
		if b.mods != mods {
			continue
		}
		return Command{Type: b.cmd, Key: key, Rune: r, Mods: mods}
	}
	return Command{Type: CommandForwardToTerminal, Key: key, Rune: r, Mods: mods}
}

// ScrollDirection discriminates a wheel event's forwarding target: the
// column itself, or the focused terminal's own scrollback (when
// Shift is held, per the default keyBinding table).
type ScrollDirection int

const (
	ScrollColumn ScrollDirection = iota
	ScrollTerminalScrollback
)

// ResolveWheel decides whether a scroll-wheel event should move the
// column's scroll offset or forward to the focused terminal's
// internal scrollback view.
func ResolveWheel(mods tcell.ModMask) ScrollDirection {
	if mods&tcell.ModShift != 0 {
		return ScrollTerminalScrollback
	}
	return ScrollColumn
}

// Dispatch applies a resolved command against the column and terminal
// manager. quit is set true when the command requests application
// exit; the caller owns actually tearing down the process.
func Dispatch(cmd Command, s *stack.TermStack, terminals *terminal.Manager, isVisible func(terminal.ID) bool) (quit bool) {
	switch cmd.Type {
	case CommandFocusNext:
		s.FocusNext(isVisible)

	case CommandFocusPrev:
		s.FocusPrev(isVisible)

	case CommandQuit:
		return true

	case CommandScrollUp:
		s.Scroll(-lineScrollAmount)

	case CommandScrollDown:
		s.Scroll(lineScrollAmount)

	case CommandScrollHome:
		s.Scroll(-s.OutputHeight * 1000)

	case CommandScrollEnd:
		s.Scroll(s.OutputHeight * 1000)

	case CommandScrollPageUp:
		s.Scroll(-int32(float64(s.OutputHeight) * pageScrollFraction))

	case CommandScrollPageDown:
		s.Scroll(int32(float64(s.OutputHeight) * pageScrollFraction))

	case CommandForwardToTerminal:
		forwardToFocusedTerminal(cmd, s, terminals)

	case CommandSpawnTerminal:
		// Spawning requires the shell command and working directory,
		// which the caller (compositor) supplies; this command type
		// exists purely for the keyBinding table to name the intent.

	case CommandNone:
	}
	return false
}

func forwardToFocusedTerminal(cmd Command, s *stack.TermStack, terminals *terminal.Manager) {
	id, ok := s.FocusedTerminal()
	if !ok {
		return
	}
	t := terminals.Get(id)
	if t == nil {
		return
	}
	bytes := vtemu.EncodeKey(cmd.Key, cmd.Rune, cmd.Mods)
	if len(bytes) > 0 {
		t.Write(bytes)
	}
}
