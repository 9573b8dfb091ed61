package config

import "testing"

func TestDefaultMatchesDarkTheme(t *testing.T) {
	cfg := Default()
	if cfg.Theme != ThemeDark {
		t.Fatalf("expected dark theme by default")
	}
	if cfg.BackgroundColor != (ThemeDark.BackgroundColor()) {
		t.Fatalf("background color should match dark theme default")
	}
	if cfg.Keyboard.RepeatDelay != 400 || cfg.Keyboard.RepeatRate != 25 {
		t.Fatalf("unexpected keyboard defaults: %+v", cfg.Keyboard)
	}
	if cfg.MinWindowHeight != 50 {
		t.Fatalf("got min_window_height=%d want 50", cfg.MinWindowHeight)
	}
}

func TestIsCSDAppExactMatch(t *testing.T) {
	cfg := Default()
	cfg.CSDApps = []string{"firefox", "chromium"}
	cfg.compileCSDGlobs()

	if !cfg.IsCSDApp("firefox") {
		t.Fatalf("expected exact match for firefox")
	}
	if cfg.IsCSDApp("firefox-esr") {
		t.Fatalf("firefox-esr should not match exact pattern firefox")
	}
	if cfg.IsCSDApp("other-app") {
		t.Fatalf("other-app should not match")
	}
}

func TestIsCSDAppPrefixMatch(t *testing.T) {
	cfg := Default()
	cfg.CSDApps = []string{"org.gnome.*"}
	cfg.compileCSDGlobs()

	if !cfg.IsCSDApp("org.gnome.Nautilus") {
		t.Fatalf("expected prefix match for org.gnome.Nautilus")
	}
	if cfg.IsCSDApp("org.kde.Dolphin") {
		t.Fatalf("org.kde.Dolphin should not match org.gnome.* pattern")
	}
}

func TestApplyThemeDefaultsForLightTheme(t *testing.T) {
	cfg := &Config{Theme: ThemeLight, BackgroundColor: ThemeDark.BackgroundColor()}
	cfg.applyThemeDefaults()
	if cfg.BackgroundColor != (ThemeLight.BackgroundColor()) {
		t.Fatalf("expected light theme background to be applied, got %+v", cfg.BackgroundColor)
	}
}

func TestLoadFallsBackToDefaultsWhenNoFileExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := Load()
	if cfg.Theme != ThemeDark {
		t.Fatalf("expected default theme when no config file present")
	}
}
