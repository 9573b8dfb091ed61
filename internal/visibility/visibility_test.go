package visibility

import "testing"

// S3: a command cell exits empty, never having produced output.
func TestCommandExitsEmpty(t *testing.T) {
	s := WaitingForOutput
	if s.IsVisible() {
		t.Fatalf("waiting_for_output should not be visible")
	}
	s = s.OnExit()
	if s != ExitedEmpty {
		t.Fatalf("got %v want exited_empty", s)
	}
	if s.IsVisible() {
		t.Fatalf("exited_empty should not be visible")
	}
	if s.HasHadOutput() {
		t.Fatalf("exited_empty should not count as having had output")
	}
}

// S4: a TUI command enters the alternate screen before any regular
// output, and must become visible anyway.
func TestAltScreenPromotesWithoutOutput(t *testing.T) {
	s := WaitingForOutput
	s = s.OnAltScreenEnter()
	if s != HasOutput {
		t.Fatalf("got %v want has_output", s)
	}
	if !s.IsVisible() {
		t.Fatalf("has_output should be visible")
	}
}

func TestOutputIsSticky(t *testing.T) {
	s := WaitingForOutput.OnOutput()
	if s != HasOutput {
		t.Fatalf("got %v want has_output", s)
	}
	// a later exit must not revert visibility
	s2 := s.OnExit()
	if s2 != HasOutput {
		t.Fatalf("has_output must be sticky across exit, got %v", s2)
	}
}

func TestAlwaysVisibleIgnoresTransitions(t *testing.T) {
	s := AlwaysVisible
	if s.OnOutput() != AlwaysVisible {
		t.Fatalf("on_output should be a no-op for always_visible")
	}
	if s.OnExit() != AlwaysVisible {
		t.Fatalf("on_exit should be a no-op for always_visible")
	}
	if s.OnAltScreenEnter() != AlwaysVisible {
		t.Fatalf("on_alt_screen_enter should be a no-op for always_visible")
	}
}

func TestForegroundGuiHideAndRestore(t *testing.T) {
	s := HiddenForForegroundGui
	if s.IsVisible() {
		t.Fatalf("hidden_for_foreground_gui should not be visible")
	}
	s = s.OnGuiExit()
	if s != AlwaysVisible {
		t.Fatalf("got %v want always_visible", s)
	}
	if !s.IsVisible() {
		t.Fatalf("always_visible should be visible")
	}
}

func TestGuiExitNoOpElsewhere(t *testing.T) {
	if WaitingForOutput.OnGuiExit() != WaitingForOutput {
		t.Fatalf("on_gui_exit should be a no-op outside hidden_for_foreground_gui")
	}
}
