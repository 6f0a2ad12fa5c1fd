package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/mirror/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeThought prints one line per thought: short id, date and content.
func writeThought(w io.Writer, t storage.Thought) {
	fmt.Fprintf(w, "%s  %s  %s\n",
		colorize(colorCyan, shortID(t.ID)),
		t.CreatedAt.Local().Format("2006-01-02 15:04"),
		truncate(t.Content, 80),
	)
}

// writeEnriched prints a captured thought with what enrichment found.
func writeEnriched(w io.Writer, e storage.Enriched) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Thought"), e.Thought.ID)
	if e.Thought.Summary != "" {
		fmt.Fprintf(w, "  Summary: %s\n", e.Thought.Summary)
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "  Tags: %s\n", strings.Join(e.Tags, ", "))
	}
	for _, a := range e.Actions {
		due := ""
		if a.DueDate != nil {
			due = " (due " + *a.DueDate + ")"
		}
		fmt.Fprintf(w, "  Action [%s]: %s%s\n", a.Priority, a.Content, due)
	}
	for _, l := range e.Links {
		fmt.Fprintf(w, "  Link: %s %s (%.2f)\n", l.Relationship, shortID(l.TargetThoughtID), l.Strength)
	}
	for _, r := range e.Reflections {
		fmt.Fprintf(w, "  Reflection (%s): %s\n", r.Type, r.Content)
	}
}
