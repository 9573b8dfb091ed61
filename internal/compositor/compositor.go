// Package compositor is the frame-loop hub: it ties together the
// terminal manager, the layout stack, and the shell-integration socket
// into the sequence of steps that runs once per frame, mirroring the
// teacher's central-dispatch shape but reassembled around TermStack's
// own per-frame reconciliation order instead of a single action switch.
package compositor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/karlb/termstack/internal/config"
	"github.com/karlb/termstack/internal/ipc"
	"github.com/karlb/termstack/internal/layout"
	"github.com/karlb/termstack/internal/stack"
	"github.com/karlb/termstack/internal/terminal"
	"github.com/karlb/termstack/internal/visibility"
)

// opResult is what a queued request hands back to whichever goroutine
// is blocked waiting on it (Resize, QueryWindows); Spawn and Builtin
// never wait, so they leave done nil.
type opResult struct {
	data json.RawMessage
	err  error
}

// pendingOp is one IPC-originated request, captured as a closure so
// Tick's drain loop doesn't need a kind enum to dispatch on.
type pendingOp struct {
	apply func(c *Compositor) (json.RawMessage, error)
	done  chan opResult
}

// PendingGUILaunch remembers a spawn request that launched a GUI
// program outside any terminal cell, so the toplevel window it
// eventually maps can be paired back to its launcher via
// PairGUIWindow. Command is matched against the toplevel's title,
// which is the only identity a freshly mapped window and a spawn
// request share.
type PendingGUILaunch struct {
	Command    string
	Launcher   *terminal.ID
	Foreground bool
}

// Compositor owns the live state for one running instance: the layout
// stack, the terminal manager, and the configuration it was started
// with. It implements ipc.Handler so the shell-integration socket can
// drive it directly.
type Compositor struct {
	Stack     *stack.TermStack
	Terminals *terminal.Manager
	Config    *config.Config

	Shell string
	Cols  uint16

	Quit bool

	pendingMu  sync.Mutex
	pending    []pendingOp
	pendingGUI []PendingGUILaunch
}

// New creates a compositor sized to outputWidth x outputHeight, with a
// login shell already spawned as the first cell.
func New(cfg *config.Config, shell string, cols uint16, cellWidth, cellHeight uint32, outputWidth, outputHeight int32) (*Compositor, error) {
	s := stack.New(outputWidth, outputHeight)
	terminals := terminal.NewManager(cellWidth, cellHeight)

	c := &Compositor{Stack: s, Terminals: terminals, Config: cfg, Shell: shell, Cols: cols}

	t, err := terminals.Spawn(shell, cols)
	if err != nil {
		return nil, fmt.Errorf("spawn login shell: %w", err)
	}
	s.AddTerminal(t.ID)
	return c, nil
}

// Tick runs one frame's worth of reconciliation: drain PTY output,
// apply any sizing actions raised as a consequence, apply every IPC
// request queued since the last tick, sync layout-node heights from
// each terminal's current pixel size, expire stale external-window
// resizes, reap exited terminals, and recompute the column layout.
// This is the only goroutine that ever mutates Stack or Terminals;
// Spawn/Builtin/Resize/QueryWindows, called from the per-connection
// IPC goroutines, only enqueue work for drainPending to apply here.
// The returned layout is what the renderer should draw against for
// this frame.
func (c *Compositor) Tick() layout.ColumnLayout {
	actions := c.Terminals.ProcessAll()
	for id, act := range actions {
		if err := c.Terminals.GrowTerminal(id, act); err != nil {
			slog.Warn("grow terminal failed", "terminal", id, "error", err)
		}
	}

	c.drainPending()

	c.syncTerminalHeights()
	c.Stack.CancelStalePendingResizes()
	c.reapExitedTerminals()
	c.Terminals.Cleanup()

	return c.Stack.RecalculateLayout()
}

// enqueue appends op to the pending queue under lock; safe to call
// from any goroutine.
func (c *Compositor) enqueue(op pendingOp) {
	c.pendingMu.Lock()
	c.pending = append(c.pending, op)
	c.pendingMu.Unlock()
}

// drainPending applies every request queued since the last tick, in
// arrival order, and wakes any goroutine blocked waiting on one.
func (c *Compositor) drainPending() {
	c.pendingMu.Lock()
	ops := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	for _, op := range ops {
		data, err := op.apply(c)
		if op.done != nil {
			op.done <- opResult{data: data, err: err}
		}
	}
}

// syncTerminalHeights copies each terminal cell's current pixel height
// into its layout node; external windows manage their own Height via
// HandleCommit/RequestResize and are left untouched here.
func (c *Compositor) syncTerminalHeights() {
	for i, node := range c.Stack.LayoutNodes {
		if node.Cell.Kind != stack.KindTerminal {
			continue
		}
		t := c.Terminals.Get(node.Cell.TerminalID)
		if t == nil {
			continue
		}
		_, height := t.PixelSize()
		c.Stack.LayoutNodes[i].Height = int32(height)
	}
}

// reapExitedTerminals removes the layout node for every terminal the
// manager is about to clean up, so the two stay in lockstep; Cleanup
// itself only knows about terminal.Manager's own bookkeeping.
func (c *Compositor) reapExitedTerminals() {
	for _, t := range c.Terminals.All() {
		if t.Exited() && !t.KeepOpen {
			c.Stack.RemoveTerminal(t.ID)
		}
	}
}

// Spawn implements ipc.Handler: enqueues req to be applied on the next
// tick rather than mutating Stack/Terminals from the calling (IPC
// connection) goroutine.
func (c *Compositor) Spawn(req ipc.SpawnRequest) {
	c.enqueue(pendingOp{apply: func(c *Compositor) (json.RawMessage, error) {
		c.applySpawn(req)
		return nil, nil
	}})
}

// applySpawn is Spawn's effect, run only from Tick's goroutine: a
// plain command spawn becomes a one-shot terminal cell; a GUI launch
// (req.IsGUI) runs outside the terminal grid entirely, see
// applyGUISpawn.
func (c *Compositor) applySpawn(req ipc.SpawnRequest) {
	if req.IsGUI {
		c.applyGUISpawn(req)
		return
	}

	t, err := c.Terminals.SpawnCommand(req.Command, req.Cwd, req.Env, c.Cols, nil)
	if err != nil {
		slog.Warn("spawn failed", "command", req.Command, "error", err)
		return
	}
	c.Stack.AddTerminal(t.ID)
}

// applyGUISpawn launches req.Command as a direct subprocess rather
// than a PTY-backed cell: a GUI program talks to its own X11/Wayland
// connection, not the terminal grid. The currently focused terminal is
// remembered as the launcher so the toplevel window the program maps
// can later be paired with it via PairGUIWindow; when req.Foreground
// is set, the launcher is hidden until that pairing closes.
func (c *Compositor) applyGUISpawn(req ipc.SpawnRequest) {
	var launcher *terminal.ID
	if id, ok := c.Stack.FocusedTerminal(); ok {
		launcher = &id
	}

	cmd := exec.Command("/bin/sh", "-c", req.Command)
	cmd.Dir = req.Cwd
	cmd.Env = guiEnv(req.Env)
	if err := cmd.Start(); err != nil {
		slog.Warn("gui spawn failed", "command", req.Command, "error", err)
		return
	}
	go func() { _ = cmd.Wait() }()

	c.pendingGUI = append(c.pendingGUI, PendingGUILaunch{
		Command:    req.Command,
		Launcher:   launcher,
		Foreground: req.Foreground,
	})

	if req.Foreground && launcher != nil {
		if t := c.Terminals.Get(*launcher); t != nil {
			t.Visibility = visibility.HiddenForForegroundGui
		}
	}
}

// guiEnv builds the environment for a GUI launch: the compositor's own
// environment (carrying whatever DISPLAY/WAYLAND_DISPLAY/
// XDG_RUNTIME_DIR it was started with) plus req.Env, which can
// override any of those for a launch targeting a different display.
func guiEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// PairGUIWindow matches a freshly mapped toplevel against any pending
// GUI launch with the same command, consuming the match and filling in
// entry's OutputTerminal/IsForegroundGui before the caller inserts it
// into the stack. Returns false when nothing matches (an external
// window that mapped outside a foreground/background GUI spawn).
func (c *Compositor) PairGUIWindow(entry *stack.ExternalEntry) bool {
	for i, p := range c.pendingGUI {
		if p.Command != entry.Command {
			continue
		}
		entry.OutputTerminal = p.Launcher
		entry.IsForegroundGui = p.Foreground
		c.pendingGUI = append(c.pendingGUI[:i], c.pendingGUI[i+1:]...)
		return true
	}
	return false
}

// OnGUIWindowClosed restores a launcher's visibility once its paired
// foreground GUI window closes; launcher/wasForeground are the values
// stack.TermStack.RemoveWindow returns.
func (c *Compositor) OnGUIWindowClosed(launcher *terminal.ID, wasForeground bool) {
	if !wasForeground || launcher == nil {
		return
	}
	if t := c.Terminals.Get(*launcher); t != nil {
		t.Visibility = t.Visibility.OnGuiExit()
	}
}

// Builtin implements ipc.Handler: enqueues req to be applied on the
// next tick.
func (c *Compositor) Builtin(req ipc.BuiltinRequest) {
	c.enqueue(pendingOp{apply: func(c *Compositor) (json.RawMessage, error) {
		c.applyBuiltin(req)
		return nil, nil
	}})
}

// applyBuiltin is Builtin's effect: a static cell recording a shell
// builtin's prompt, command, and result text.
func (c *Compositor) applyBuiltin(req ipc.BuiltinRequest) {
	t := c.Terminals.CreateBuiltin(req.Prompt, req.Command, req.Result, !req.Success, c.Cols, nil)
	c.Stack.AddTerminal(t.ID)
}

// Resize implements ipc.Handler: enqueues the request and blocks until
// Tick applies it, matching the shell-integration helper's expectation
// of a synchronous reply once the resize has actually taken effect.
func (c *Compositor) Resize(mode ipc.ResizeMode) error {
	done := make(chan opResult, 1)
	c.enqueue(pendingOp{
		apply: func(c *Compositor) (json.RawMessage, error) {
			return nil, c.applyResize(mode)
		},
		done: done,
	})
	res := <-done
	return res.err
}

// applyResize is Resize's effect: grows the focused terminal to fill
// either the full viewport or exactly its current content.
func (c *Compositor) applyResize(mode ipc.ResizeMode) error {
	id, ok := c.Stack.FocusedTerminal()
	if !ok {
		return fmt.Errorf("no terminal focused")
	}
	t := c.Terminals.Get(id)
	if t == nil {
		return fmt.Errorf("focused terminal %d not found", id)
	}

	var rows uint16
	switch mode {
	case ipc.ResizeContent:
		rows = uint16(t.ContentRows())
	default:
		_, cellHeight := t.CellSize()
		if cellHeight == 0 {
			return fmt.Errorf("terminal %d has zero cell height", id)
		}
		rows = uint16(uint32(c.Stack.OutputHeight) / cellHeight)
	}
	if rows == 0 {
		rows = 1
	}

	if err := c.Terminals.ResizeTo(id, rows); err != nil {
		return fmt.Errorf("resize terminal %d: %w", id, err)
	}
	c.syncTerminalHeights()
	return nil
}

// windowInfo is the per-cell shape query_windows reports, matching
// what the shell-integration helper expects on its response line.
type windowInfo struct {
	Index      int    `json:"index"`
	Width      int32  `json:"width"`
	Height     int32  `json:"height"`
	IsExternal bool   `json:"is_external"`
	Command    string `json:"command"`
}

// QueryWindows implements ipc.Handler: enqueues the query and blocks
// until Tick builds the response from a consistent, non-racing view
// of Stack/Terminals.
func (c *Compositor) QueryWindows() (json.RawMessage, error) {
	done := make(chan opResult, 1)
	c.enqueue(pendingOp{
		apply: func(c *Compositor) (json.RawMessage, error) {
			return c.buildQueryWindows()
		},
		done: done,
	})
	res := <-done
	return res.data, res.err
}

// Snapshot reports the same window geometry as QueryWindows, for
// callers that already run on the frame-loop goroutine (the
// diagnostic broadcast right after Tick) and so can read Stack/
// Terminals directly without going through the pending queue.
func (c *Compositor) Snapshot() (json.RawMessage, error) {
	return c.buildQueryWindows()
}

// buildQueryWindows is QueryWindows'/Snapshot's effect: reports every
// cell's current geometry and command/title as a single JSON array.
func (c *Compositor) buildQueryWindows() (json.RawMessage, error) {
	infos := make([]windowInfo, 0, len(c.Stack.LayoutNodes))
	for i, node := range c.Stack.LayoutNodes {
		switch node.Cell.Kind {
		case stack.KindTerminal:
			t := c.Terminals.Get(node.Cell.TerminalID)
			command := ""
			width := c.Stack.OutputWidth
			height := node.Height
			if t != nil {
				command = t.Title
				w, _ := t.PixelSize()
				width = int32(w)
			}
			infos = append(infos, windowInfo{Index: i, Width: width, Height: height, IsExternal: false, Command: command})

		case stack.KindExternal:
			entry := node.Cell.External
			command := ""
			if entry != nil {
				command = entry.Command
			}
			infos = append(infos, windowInfo{Index: i, Width: c.Stack.OutputWidth, Height: node.Height, IsExternal: true, Command: command})
		}
	}

	data, err := json.Marshal(infos)
	if err != nil {
		return nil, fmt.Errorf("marshal window query: %w", err)
	}
	return data, nil
}
