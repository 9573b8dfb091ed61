// Package wlbridge defines the contract TermStack needs from a
// Wayland compositor backend for hosting external (non-terminal)
// toplevel windows inside the column, without depending on any
// concrete Wayland protocol implementation — none exists in this
// ecosystem's Go libraries, so the backend is always provided by the
// embedding program (typically via xwayland-satellite for X11 apps).
package wlbridge

import (
	"github.com/karlb/termstack/internal/stack"
	"github.com/karlb/termstack/internal/terminal"
)

// ToplevelHandle is a single mapped external window.
type ToplevelHandle interface {
	// ID is a stable identity for this toplevel across its lifetime.
	ID() stack.ExternalID

	// AppID returns the client-reported app/window-class identifier,
	// used for CSD pattern matching.
	AppID() string

	// Title returns the client-reported window title.
	Title() string

	// RequestSize asks the client to resize its surface content to
	// (width, height) and returns immediately; completion is reported
	// asynchronously as a Commit event.
	RequestSize(width, height int32)

	// Close asks the client to close the window.
	Close()

	// Activate/Deactivate toggle the toplevel's "focused" decoration
	// state as reported to the client (required for some GTK apps to
	// animate correctly).
	Activate()
	Deactivate()
}

// PopupHandle is a transient popup (menu, tooltip) anchored to a
// ToplevelHandle.
type PopupHandle interface {
	ID() stack.ExternalID
	Close()
}

// ToplevelSource is the event source a Wayland backend implements to
// notify the compositor of toplevel lifecycle events. TermStack
// dispatches each event into a stack.TermStack operation.
type ToplevelSource interface {
	// Events returns a channel of lifecycle events. The channel is
	// closed when the backend shuts down.
	Events() <-chan Event
}

// EventKind discriminates the six lifecycle events a Wayland backend
// reports for external windows.
type EventKind int

const (
	// EventNewToplevel: a client mapped a new top-level window.
	EventNewToplevel EventKind = iota
	// EventToplevelClosed: a client's window was unmapped or the
	// client disconnected.
	EventToplevelClosed
	// EventCommit: a client committed a new buffer, possibly
	// completing a pending resize.
	EventCommit
	// EventTitleChanged: a client updated its window title.
	EventTitleChanged
	// EventAppIDChanged: a client set or changed its app ID (used for
	// CSD detection once the app_id becomes known).
	EventAppIDChanged
	// EventDecorationModeChanged: a client requested client-side
	// decorations via the XDG decoration protocol.
	EventDecorationModeChanged
)

// Event is a single toplevel lifecycle notification.
type Event struct {
	Kind EventKind

	Toplevel ToplevelHandle

	// CommittedWidth/CommittedHeight are populated for EventCommit.
	CommittedWidth  int32
	CommittedHeight int32

	// Title is populated for EventTitleChanged.
	Title string

	// AppID is populated for EventAppIDChanged.
	AppID string

	// UsesCSD is populated for EventDecorationModeChanged.
	UsesCSD bool
}

// Dispatch translates a single backend event into the corresponding
// stack.TermStack mutation. isCSDApp classifies an app ID against the
// configured CSD patterns for windows that never send an explicit
// decoration-mode event.
//
// pairGUILaunch is consulted for EventNewToplevel to fill in a window
// spawned via a GUI launch's OutputTerminal/IsForegroundGui before it
// is inserted; onClosed is consulted for EventToplevelClosed with
// whatever RemoveWindow returns, to restore a launcher's visibility
// once its paired window closes. Both may be nil when the backend
// never originates GUI-launch windows.
func Dispatch(s *stack.TermStack, ev Event, isCSDApp func(appID string) bool, pairGUILaunch func(entry *stack.ExternalEntry) bool, onClosed func(outputTerminal *terminal.ID, wasForeground bool)) {
	switch ev.Kind {
	case EventNewToplevel:
		entry := &stack.ExternalEntry{
			ID:      ev.Toplevel.ID(),
			Command: ev.Toplevel.Title(),
			UsesCSD: isCSDApp(ev.Toplevel.AppID()),
		}
		if pairGUILaunch != nil {
			pairGUILaunch(entry)
		}
		s.AddWindow(entry)

	case EventToplevelClosed:
		outputTerminal, wasForeground := s.RemoveWindow(ev.Toplevel.ID())
		if onClosed != nil {
			onClosed(outputTerminal, wasForeground)
		}

	case EventCommit:
		idx := indexOf(s, ev.Toplevel.ID())
		if idx >= 0 {
			s.HandleCommit(idx, ev.CommittedHeight)
		}

	case EventAppIDChanged:
		idx := indexOf(s, ev.Toplevel.ID())
		if idx >= 0 && isCSDApp(ev.AppID) {
			if entry := s.LayoutNodes[idx].Cell.External; entry != nil {
				entry.UsesCSD = true
			}
		}

	case EventDecorationModeChanged:
		idx := indexOf(s, ev.Toplevel.ID())
		if idx >= 0 {
			if entry := s.LayoutNodes[idx].Cell.External; entry != nil {
				entry.UsesCSD = ev.UsesCSD
			}
		}

	case EventTitleChanged:
		idx := indexOf(s, ev.Toplevel.ID())
		if idx >= 0 {
			if entry := s.LayoutNodes[idx].Cell.External; entry != nil {
				entry.Command = ev.Title
			}
		}
	}
}

func indexOf(s *stack.TermStack, id stack.ExternalID) int {
	for i, node := range s.LayoutNodes {
		if node.Cell.Kind == stack.KindExternal && node.Cell.External != nil && node.Cell.External.ID == id {
			return i
		}
	}
	return -1
}
