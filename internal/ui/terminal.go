package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsAgentMode reports whether pp is being driven by an AI coding agent.
// Agent mode keeps output plain so it can be parsed.
func IsAgentMode() bool {
	if os.Getenv("PP_AGENT_MODE") == "1" {
		return true
	}
	return os.Getenv("CLAUDECODE") != "" || os.Getenv("CURSOR_AGENT") != ""
}

// ShouldUseColor follows the NO_COLOR / CLICOLOR / CLICOLOR_FORCE conventions,
// falling back to TTY detection.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok && os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	return IsTerminal()
}

// ApplyColorProfile configures lipgloss once per process. When color is off
// every style renders as plain text.
func ApplyColorProfile() {
	if !ShouldUseColor() || IsAgentMode() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
}

// TerminalWidth returns the stdout width, or fallback when unknown.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
