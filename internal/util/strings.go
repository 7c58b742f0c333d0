// Package util provides small helpers shared across pipewright packages.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateString cuts s to maxLen runes, ending in "..." when cut.
// Escape sequences are counted as ordinary runes.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateANSI cuts s to maxWidth terminal columns, ending in "..." when cut.
// Escape sequences are kept and wide characters count double.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}
