package ui

import (
	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders markdown text using glamour.
// Returns the original text if rendering fails or colors are off.
func RenderMarkdown(markdown string) string {
	if IsAgentMode() || !ShouldUseColor() {
		return markdown
	}

	// Cap at 100 chars for readability
	const maxReadableWidth = 100
	wrapWidth := TerminalWidth(80)
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
