// Package shell abstracts the handful of per-shell decisions the
// shell-integration helper needs to make before deciding whether a
// typed command should run in the current shell, be rejected as
// incomplete, or spawn a new terminal: builtin detection, command-line
// normalization, and syntax-completeness checking.
package shell

import (
	"os"
	"path/filepath"
	"strings"
)

// Shell is the small capability interface every concrete shell
// integration implements.
type Shell interface {
	// NormalizeCommand collapses shell-specific line continuations and
	// statement separators so a single first-word builtin check works
	// regardless of how the command was typed.
	NormalizeCommand(command string) string

	// IsBuiltin reports whether command's first word should run in the
	// current shell rather than spawn a new terminal, checked against
	// extra (the configured shell_commands list) in addition to any
	// shell-specific builtins.
	IsBuiltin(command string, extra []string) bool

	// IsSyntaxComplete reports whether command is a complete statement;
	// false means the shell should keep accepting input (unbalanced
	// quotes, an open `begin`/`if`/`for`/`while`/`function` block, ...).
	IsSyntaxComplete(command string) bool
}

// Detect picks a Shell implementation from the SHELL environment
// variable, falling back to a minimal implementation for anything it
// doesn't recognize.
func Detect() Shell {
	name := filepath.Base(os.Getenv("SHELL"))
	switch name {
	case "fish":
		return Fish{}
	default:
		return Fallback{}
	}
}

// IsFishPath reports whether shellPath names a fish binary, the way
// ptyproc decides whether to inject FishInitScript at spawn time.
func IsFishPath(shellPath string) bool {
	return filepath.Base(shellPath) == "fish"
}

// FishInitScript is the integration snippet injected into every
// spawned fish shell via `-C`, standing in for the hand-sourced
// scripts/integration.fish the original ships (not included in this
// port's source material, see DESIGN.md): on each command about to
// run, it hands the command line to the shell-integration helper and,
// if the helper claims it (exit 0), cancels the line fish was about
// to execute so the compositor's own spawned terminal runs it instead.
const FishInitScript = `function __termstack_preexec --on-event fish_preexec
    if test -n "$TERMSTACK_SOCKET"
        termstack-cli -c "$argv"
        switch $status
            case 0
                commandline -f cancel-commandline
        end
    end
end
`

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isBuiltinAgainst(command string, lists ...[]string) bool {
	word := firstWord(command)
	if word == "" {
		return false
	}
	for _, list := range lists {
		for _, b := range list {
			if b == word {
				return true
			}
		}
	}
	return false
}

// Fallback treats every command as syntactically complete and only
// recognizes the configured shell_commands list as builtins, matching
// the contract for a shell with no dedicated integration.
type Fallback struct{}

func (Fallback) NormalizeCommand(command string) string { return command }

func (Fallback) IsBuiltin(command string, extra []string) bool {
	return isBuiltinAgainst(command, extra)
}

func (Fallback) IsSyntaxComplete(string) bool { return true }

// fishBuiltins supplements the configured shell_commands list with a
// few fish-specific statement keywords that are never meaningful to
// run in a spawned terminal.
var fishBuiltins = []string{"begin", "end", "function", "if", "else", "switch", "case", "for", "while", "not", "and", "or"}

// Fish implements fish shell's statement-separator normalization and a
// keyword-depth syntax checker for its block constructs.
type Fish struct{}

// NormalizeCommand collapses embedded newlines into ";" the way fish's
// own command-line editor does when a multi-line edit is executed as
// one statement.
func (Fish) NormalizeCommand(command string) string {
	lines := strings.Split(command, "\n")
	trimmed := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return strings.Join(trimmed, "; ")
}

func (Fish) IsBuiltin(command string, extra []string) bool {
	return isBuiltinAgainst(command, extra, fishBuiltins)
}

// blockOpeners lists the keywords that open a fish block (`begin`/
// `function`/`if`/`for`/`while`/`switch`), each closed by `end`.
var blockOpeners = map[string]bool{
	"begin": true, "function": true, "if": true, "for": true, "while": true, "switch": true,
}

// IsSyntaxComplete reports false when command has unbalanced quotes or
// an unclosed block keyword, so the shell keeps prompting for more
// input instead of the helper spawning a terminal for half a statement.
func (Fish) IsSyntaxComplete(command string) bool {
	if !quotesBalanced(command) {
		return false
	}

	depth := 0
	for _, word := range strings.Fields(command) {
		word = strings.TrimRight(word, ";")
		switch {
		case blockOpeners[word]:
			depth++
		case word == "end":
			depth--
		}
	}
	return depth <= 0
}

func quotesBalanced(command string) bool {
	var single, double bool
	escaped := false
	for _, r := range command {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '\'':
			if !double {
				single = !single
			}
		case '"':
			if !single {
				double = !double
			}
		}
	}
	return !single && !double
}
