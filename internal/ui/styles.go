// Package ui provides terminal styling for pp CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	CommandStyle  = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
	IconRun  = "▶"
)

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in uppercase with accent color.
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderCommand renders an external command line the way it is echoed
// before execution: "$ dotnet build PlatformPlatform.slnx".
func RenderCommand(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return CommandStyle.Render("$ " + strings.Join(parts, " "))
}

func RenderPassIcon() string { return PassStyle.Render(IconPass) }
func RenderWarnIcon() string { return WarnStyle.Render(IconWarn) }
func RenderFailIcon() string { return FailStyle.Render(IconFail) }
func RenderSkipIcon() string { return MutedStyle.Render(IconSkip) }
func RenderInfoIcon() string { return AccentStyle.Render(IconInfo) }
func RenderRunIcon() string  { return AccentStyle.Render(IconRun) }

// StatusIcon maps a step status ("ok", "warning", "error", "skipped") to its icon.
func StatusIcon(status string) string {
	switch status {
	case "ok", "pass", "passed":
		return RenderPassIcon()
	case "warning", "warn", "flaky":
		return RenderWarnIcon()
	case "error", "fail", "failed":
		return RenderFailIcon()
	case "running":
		return RenderRunIcon()
	default:
		return RenderSkipIcon()
	}
}
