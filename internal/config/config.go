// Package config loads TermStack's runtime configuration from TOML,
// checking XDG_CONFIG_HOME (or ~/.config) then /etc/termstack before
// falling back to built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

// Theme selects the compositor's default color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// BackgroundColor returns this theme's default RGBA background,
// unless the config file overrides it explicitly.
func (t Theme) BackgroundColor() [4]float32 {
	switch t {
	case ThemeLight:
		return [4]float32{1.0, 1.0, 1.0, 1.0}
	default:
		return [4]float32{0.1, 0.1, 0.1, 1.0}
	}
}

// KeyboardConfig configures the XKB keymap and repeat behavior.
type KeyboardConfig struct {
	Layout      string `toml:"layout"`
	Variant     string `toml:"variant"`
	Model       string `toml:"model"`
	Options     string `toml:"options"`
	RepeatDelay uint32 `toml:"repeat_delay"`
	RepeatRate  uint32 `toml:"repeat_rate"`
}

// DefaultKeyboardConfig returns the keyboard defaults.
func DefaultKeyboardConfig() KeyboardConfig {
	return KeyboardConfig{RepeatDelay: 400, RepeatRate: 25}
}

// Config is TermStack's full runtime configuration.
type Config struct {
	Theme           Theme          `toml:"theme"`
	FontSize        float32        `toml:"font_size"`
	BackgroundColor [4]float32     `toml:"background_color"`
	WindowGap       uint32         `toml:"window_gap"`
	MinWindowHeight uint32         `toml:"min_window_height"`
	MaxWindowHeight uint32         `toml:"max_window_height"`
	ScrollSpeed     float64        `toml:"scroll_speed"`
	AutoScroll      bool           `toml:"auto_scroll"`
	Keyboard        KeyboardConfig `toml:"keyboard"`
	CSDApps         []string       `toml:"csd_apps"`
	ShellCommands   []string       `toml:"shell_commands"`

	csdGlobs []glob.Glob
}

// DefaultShellCommands lists the builtins the shell-integration helper
// runs in the invoking shell rather than spawning a new terminal for.
func DefaultShellCommands() []string {
	return []string{
		"cd", "pushd", "popd", "dirs",
		"export", "unset", "set",
		"source", ".",
		"alias", "unalias",
		"hash", "type", "which",
		"jobs", "fg", "bg", "disown",
		"exit", "logout",
		"exec",
		"eval",
		"builtin", "command",
		"local", "declare", "typeset", "readonly",
		"shift",
		"trap",
		"ulimit", "umask",
		"wait",
		"history", "fc",
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	theme := ThemeDark
	return &Config{
		Theme:           theme,
		FontSize:        14.0,
		BackgroundColor: theme.BackgroundColor(),
		WindowGap:       0,
		MinWindowHeight: 50,
		MaxWindowHeight: 0,
		ScrollSpeed:     1.0,
		AutoScroll:      true,
		Keyboard:        DefaultKeyboardConfig(),
		CSDApps:         nil,
		ShellCommands:   DefaultShellCommands(),
	}
}

// Load reads configuration from the first of: $XDG_CONFIG_HOME (or
// ~/.config)/termstack/config.toml, then /etc/termstack/config.toml.
// Falls back to Default() if neither exists or parses.
func Load() *Config {
	for _, path := range searchPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cfg := Default()
		if _, err := toml.Decode(string(data), cfg); err != nil {
			continue
		}
		cfg.applyThemeDefaults()
		cfg.compileCSDGlobs()
		return cfg
	}

	cfg := Default()
	cfg.compileCSDGlobs()
	return cfg
}

func searchPaths() []string {
	var dir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = xdg
	} else if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config")
	}

	var paths []string
	if dir != "" {
		paths = append(paths, filepath.Join(dir, "termstack", "config.toml"))
	}
	paths = append(paths, "/etc/termstack/config.toml")
	return paths
}

// applyThemeDefaults resets BackgroundColor to the theme's default
// when the config file left it at the struct zero value, or at the
// dark default while the theme is actually light (TOML omits a
// [4]float32 the same way whether it was never set or set to zero).
func (c *Config) applyThemeDefaults() {
	if c.BackgroundColor == ([4]float32{}) || (c.Theme == ThemeLight && c.BackgroundColor == ThemeDark.BackgroundColor()) {
		c.BackgroundColor = c.Theme.BackgroundColor()
	}
}

func (c *Config) compileCSDGlobs() {
	c.csdGlobs = make([]glob.Glob, 0, len(c.CSDApps))
	for _, pattern := range c.CSDApps {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		c.csdGlobs = append(c.csdGlobs, g)
	}
}

// IsCSDApp reports whether appID matches one of the configured CSD
// patterns (exact match, or "prefix*" glob).
func (c *Config) IsCSDApp(appID string) bool {
	if c.csdGlobs == nil {
		c.compileCSDGlobs()
	}
	for _, g := range c.csdGlobs {
		if g.Match(appID) {
			return true
		}
	}
	return false
}

// Save writes the configuration to path as TOML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
