package summarize

import (
	"regexp"
	"strings"
	"unicode"
)

// maxSummaryRunes caps upload-level summaries before they are cached.
const maxSummaryRunes = 2000

var (
	thinkBlockRE     = regexp.MustCompile(`(?is)<think>.*?</think>\s*`)
	reasoningFenceRE = regexp.MustCompile("(?is)```(?:thinking|reasoning)?\\s*.*?```")
)

// looksHTML reports whether a body is an HTML page rather than completion
// text.
func looksHTML(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(t, "<!doctype html") || strings.HasPrefix(t, "<html")
}

// stripReasoning removes <think> blocks and reasoning code fences that some
// models leak into their output.
func stripReasoning(text string) string {
	if text == "" {
		return text
	}
	text = thinkBlockRE.ReplaceAllString(text, "")
	text = reasoningFenceRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// truncateSummary limits a summary to maxSummaryRunes, appending an ellipsis
// when text was cut.
func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryRunes {
		return s
	}
	return strings.TrimRightFunc(string(runes[:maxSummaryRunes]), unicode.IsSpace) + "…"
}

// clip shortens a string to at most n runes.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
