// Package terminal manages the lifecycle of PTY-backed cells: spawning
// shells and one-shot commands, growing them as content accumulates,
// promoting visibility on output or alternate-screen entry, and
// draining PTY output for every live cell once per frame.
package terminal

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/karlb/termstack/internal/ptyproc"
	"github.com/karlb/termstack/internal/sizing"
	"github.com/karlb/termstack/internal/visibility"
	"github.com/karlb/termstack/internal/vtemu"
)

// maxPTYRows is the oversized row count given to the PTY so that
// programs which query the window size see ample room, independent of
// how many rows are currently visible on screen (visualRows).
const maxPTYRows = 1000

// ID uniquely identifies a managed terminal.
type ID uint32

// idGen hands out process-wide unique terminal IDs.
var idGen atomic.Uint32

func nextID() ID {
	return ID(idGen.Add(1))
}

// Terminal is a single managed PTY-backed cell.
type Terminal struct {
	ID ID

	proc      *ptyproc.Process
	emu       *vtemu.Emulator
	sizing    *sizing.State
	Visibility visibility.State

	Title        string
	ShowTitleBar bool
	KeepOpen     bool
	ManuallySized bool
	Parent       *ID

	cellWidth, cellHeight uint32
	visualRows            uint16
	cols                  uint16

	dirty         bool
	exited        bool
	prevAltScreen bool
}

// PixelSize returns the cell's current pixel width and height (based
// on visualRows, not the oversized PTY row count).
func (t *Terminal) PixelSize() (width, height uint32) {
	return uint32(t.cols) * t.cellWidth, uint32(t.visualRows) * t.cellHeight
}

// CellSize returns the pixel dimensions of a single glyph cell, used
// to convert pointer coordinates into grid column/row positions.
func (t *Terminal) CellSize() (width, height uint32) {
	return t.cellWidth, t.cellHeight
}

// ContentRows returns the number of rows with meaningful content,
// used to clamp "select to bottom" without including empty trailing
// rows.
func (t *Terminal) ContentRows() int {
	return t.emu.ContentRows()
}

// GridRows returns the emulator's configured row count.
func (t *Terminal) GridRows() int {
	_, rows := t.emu.Size()
	return rows
}

// Cols returns the visual column count.
func (t *Terminal) Cols() uint16 { return t.cols }

// Emulator exposes the underlying VT100 screen buffer.
func (t *Terminal) Emulator() *vtemu.Emulator { return t.emu }

// Dirty reports whether the cell needs to be re-rendered.
func (t *Terminal) Dirty() bool { return t.dirty }

// MarkDirty forces a re-render on the next frame.
func (t *Terminal) MarkDirty() { t.dirty = true }

// ClearDirty resets the dirty flag after rendering.
func (t *Terminal) ClearDirty() { t.dirty = false }

// Exited reports whether the underlying process has terminated.
func (t *Terminal) Exited() bool { return t.exited }

// IsVisible reports whether the cell should currently be rendered.
func (t *Terminal) IsVisible() bool { return t.Visibility.IsVisible() }

// Write sends input bytes to the PTY.
func (t *Terminal) Write(data []byte) error {
	_, err := t.proc.Write(data)
	if err != nil {
		return fmt.Errorf("write to terminal %d: %w", t.ID, err)
	}
	return nil
}

// Manager owns every live terminal, keyed by ID, and drives their PTY
// I/O and sizing/visibility transitions once per frame.
type Manager struct {
	mu        sync.Mutex
	terminals map[ID]*Terminal
	cellWidth uint32
	cellHeight uint32
}

// NewManager creates an empty manager. cellWidth/cellHeight are the
// font metrics used to convert row/col counts to pixel sizes.
func NewManager(cellWidth, cellHeight uint32) *Manager {
	return &Manager{
		terminals:  make(map[ID]*Terminal),
		cellWidth:  cellWidth,
		cellHeight: cellHeight,
	}
}

// Spawn starts a login shell cell, always visible, with no title bar.
func (m *Manager) Spawn(shell string, cols uint16) (*Terminal, error) {
	proc, err := ptyproc.Spawn(shell, cols, maxPTYRows)
	if err != nil {
		return nil, fmt.Errorf("spawn shell: %w", err)
	}

	t := &Terminal{
		ID:           nextID(),
		proc:         proc,
		emu:          vtemu.New(int(cols), maxPTYRows),
		sizing:       sizing.New(1),
		Visibility:   visibility.AlwaysVisible,
		Title:        shellTitle(shell),
		ShowTitleBar: false,
		KeepOpen:     false,
		cellWidth:    m.cellWidth,
		cellHeight:   m.cellHeight,
		visualRows:   1,
		cols:         cols,
		dirty:        true,
	}

	m.mu.Lock()
	m.terminals[t.ID] = t
	m.mu.Unlock()
	return t, nil
}

// SpawnCommand starts a one-shot command cell, hidden until it
// produces output, with a title bar showing the command.
func (m *Manager) SpawnCommand(command, workingDir string, env map[string]string, cols uint16, parent *ID) (*Terminal, error) {
	proc, err := ptyproc.SpawnCommand(command, workingDir, env, cols, maxPTYRows)
	if err != nil {
		return nil, fmt.Errorf("spawn command %q: %w", command, err)
	}

	t := &Terminal{
		ID:           nextID(),
		proc:         proc,
		emu:          vtemu.New(int(cols), maxPTYRows),
		sizing:       sizing.New(1),
		Visibility:   visibility.WaitingForOutput,
		Title:        command,
		ShowTitleBar: true,
		KeepOpen:     true,
		Parent:       parent,
		cellWidth:    m.cellWidth,
		cellHeight:   m.cellHeight,
		visualRows:   1,
		cols:         cols,
		dirty:        true,
	}

	m.mu.Lock()
	m.terminals[t.ID] = t
	m.mu.Unlock()
	return t, nil
}

// CreateBuiltin creates a terminal-shaped cell for a shell builtin
// result with no backing PTY process: it's a static, one-shot render
// of a prompt/command/result triple.
func (m *Manager) CreateBuiltin(prompt, command, result string, isError bool, cols uint16, parent *ID) *Terminal {
	emu := vtemu.New(int(cols), maxPTYRows)
	text := fmt.Sprintf("%s %s\r\n%s\r\n", prompt, command, result)
	emu.Write([]byte(text))

	t := &Terminal{
		ID:           nextID(),
		emu:          emu,
		sizing:       sizing.New(1),
		Visibility:   visibility.HasOutput,
		Title:        command,
		ShowTitleBar: true,
		KeepOpen:     true,
		Parent:       parent,
		cellWidth:    m.cellWidth,
		cellHeight:   m.cellHeight,
		visualRows:   2,
		cols:         cols,
		dirty:        true,
		exited:       true,
	}

	m.mu.Lock()
	m.terminals[t.ID] = t
	m.mu.Unlock()
	return t
}

// Get returns the terminal with the given ID, or nil.
func (m *Manager) Get(id ID) *Terminal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminals[id]
}

// All returns every managed terminal in unspecified order.
func (m *Manager) All() []*Terminal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Terminal, 0, len(m.terminals))
	for _, t := range m.terminals {
		out = append(out, t)
	}
	return out
}

// Remove deletes a terminal from the manager, closing its PTY if any.
func (m *Manager) Remove(id ID) {
	m.mu.Lock()
	t, ok := m.terminals[id]
	if ok {
		delete(m.terminals, id)
	}
	m.mu.Unlock()

	if ok && t.proc != nil {
		_ = t.proc.Close()
	}
}

// SizingAction is re-exported so callers driving resize reconciliation
// don't need to import internal/sizing directly.
type SizingAction = sizing.Action

// ProcessAll polls every terminal's PTY once, feeding any bytes read
// into its emulator, and returns the sizing actions raised as a
// consequence (growth requests, resize completions). Terminals without
// a backing process (builtins) are skipped.
func (m *Manager) ProcessAll() map[ID]sizing.Action {
	m.mu.Lock()
	terms := make([]*Terminal, 0, len(m.terminals))
	for _, t := range m.terminals {
		terms = append(terms, t)
	}
	m.mu.Unlock()

	actions := make(map[ID]sizing.Action)
	buf := make([]byte, 64*1024)

	for _, t := range terms {
		if t.proc == nil || t.exited {
			continue
		}

		// Checked before polling, so everything an exited process wrote
		// is fed to the emulator before OnExit runs.
		exitedBeforePoll := !t.proc.IsRunning()

		n, err := t.proc.Poll(buf)
		if err != nil {
			t.exited = true
			t.Visibility = t.Visibility.OnExit()
			continue
		}
		if n > 0 {
			t.emu.Write(buf[:n])
			t.dirty = true
			if t.Visibility == visibility.WaitingForOutput && t.emu.HasMeaningfulContent() {
				t.Visibility = t.Visibility.OnOutput()
			}
			for _, b := range buf[:n] {
				if b != '\n' {
					continue
				}
				if act := t.sizing.OnNewLine(); act.Kind != sizing.ActionNone {
					actions[t.ID] = act
				}
			}
		}

		if t.checkAltScreenPromotion() {
			if t.Visibility == visibility.WaitingForOutput {
				t.Visibility = t.Visibility.OnAltScreenEnter()
			}
		}

		if exitedBeforePoll {
			t.exited = true
			t.Visibility = t.Visibility.OnExit()
			if t.Parent != nil {
				if parent := m.Get(*t.Parent); parent != nil {
					parent.Visibility = parent.Visibility.OnGuiExit()
				}
			}
		}
	}
	return actions
}

// checkAltScreenPromotion reports whether the terminal just entered
// the alternate screen, tracking the transition internally.
func (t *Terminal) checkAltScreenPromotion() bool {
	isAlt := t.emu.IsAlternateScreen()
	wasAlt := t.prevAltScreen
	t.prevAltScreen = isAlt
	return isAlt && !wasAlt
}

// GrowTerminal applies a sizing action emitted by ProcessAll. A
// RequestGrowth action has no separate renderer round-trip to wait
// on here (the compositor itself owns the cell's row count, unlike an
// external window's xdg_toplevel configure/ack_configure exchange), so
// it is immediately acknowledged via OnConfigure before resizing the
// PTY and emulator and completing the resize.
func (m *Manager) GrowTerminal(id ID, act sizing.Action) error {
	t := m.Get(id)
	if t == nil {
		return fmt.Errorf("terminal %d not found", id)
	}
	if t.ManuallySized {
		return nil
	}

	if act.Kind == sizing.ActionRequestGrowth {
		act = t.sizing.OnConfigure(act.TargetRows)
	}

	switch act.Kind {
	case sizing.ActionApplyResize:
		t.visualRows = act.Rows
		t.emu.Resize(int(t.cols), maxPTYRows)
		if t.proc != nil {
			if err := t.proc.Resize(t.cols, maxPTYRows); err != nil {
				return fmt.Errorf("resize terminal %d: %w", id, err)
			}
		}
		completeAct := t.sizing.OnResizeComplete()
		if completeAct.Kind == sizing.ActionRestoreScrollback {
			// scrollback accounting already lives in the emulator's
			// own scroll tracking; nothing further to apply here.
			_ = completeAct.Lines
		}
		t.dirty = true
	}
	return nil
}

// ResizeTo forces a terminal to rows regardless of content, marking it
// ManuallySized so ProcessAll's growth accounting leaves it alone
// afterward. Used by the shell-integration resize command (full
// viewport or content-fit).
func (m *Manager) ResizeTo(id ID, rows uint16) error {
	t := m.Get(id)
	if t == nil {
		return fmt.Errorf("terminal %d not found", id)
	}

	act := t.sizing.OnConfigure(rows)
	if act.Kind == sizing.ActionApplyResize {
		t.visualRows = act.Rows
		t.emu.Resize(int(t.cols), maxPTYRows)
		if t.proc != nil {
			if err := t.proc.Resize(t.cols, maxPTYRows); err != nil {
				return fmt.Errorf("resize terminal %d: %w", id, err)
			}
		}
		t.sizing.OnResizeComplete()
	} else {
		t.visualRows = rows
	}
	t.ManuallySized = true
	t.dirty = true
	return nil
}

// Cleanup closes and removes every terminal whose process has exited
// and which is not flagged to stay open (command terminals keep their
// output visible after exit; shells do not).
func (m *Manager) Cleanup() {
	m.mu.Lock()
	var toRemove []ID
	for id, t := range m.terminals {
		if t.exited && !t.KeepOpen {
			toRemove = append(toRemove, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toRemove {
		m.Remove(id)
	}
}

func shellTitle(shell string) string {
	for i := len(shell) - 1; i >= 0; i-- {
		if shell[i] == '/' {
			return shell[i+1:]
		}
	}
	if shell == "" {
		return "Terminal"
	}
	return shell
}
