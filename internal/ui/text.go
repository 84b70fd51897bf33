package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TruncateSimple performs end truncation with a "..." suffix. UTF-8 safe.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(text)
	return string(runes[:maxLen-3]) + "..."
}

// TruncateLines keeps the first maxLines lines of text and appends a muted
// "(N more lines)" marker when lines were dropped.
func TruncateLines(text string, maxLines int) string {
	if text == "" || maxLines <= 0 {
		return text
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= maxLines {
		return text
	}
	hidden := len(lines) - maxLines
	return strings.Join(lines[:maxLines], "\n") + "\n" + RenderMuted(fmt.Sprintf("... (%d more %s)", hidden, Pluralize(hidden, "line", "lines")))
}

// Indent prefixes every non-empty line of text with prefix.
func Indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Pluralize picks singular or plural based on n.
func Pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// FormatDuration renders durations the way step summaries show them:
// "850ms", "12.4s", "3m05s".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dm%02ds", m, s)
	}
}
