package context

import (
	"fmt"
	"strings"
)

// ResultCompactor trims oversized tool results before they enter the
// conversation history. Error output is never truncated: a cut-off
// stack trace is worse than a large one.
type ResultCompactor struct {
	maxChars  int
	headLines int
	tailLines int
}

// NewResultCompactor creates a new result compactor.
func NewResultCompactor(maxChars int) *ResultCompactor {
	if maxChars <= 0 {
		maxChars = 10000
	}
	return &ResultCompactor{
		maxChars:  maxChars,
		headLines: 30,
		tailLines: 15,
	}
}

// Compact returns content trimmed to the configured budget. Content
// carrying error indicators passes through unchanged.
func (c *ResultCompactor) Compact(content string, isError bool) string {
	if isError || len(content) <= c.maxChars {
		return content
	}

	if containsErrorIndicators(content) {
		return content
	}

	lines := strings.Split(content, "\n")
	if len(lines) > c.headLines+c.tailLines+10 {
		head := strings.Join(lines[:c.headLines], "\n")
		tail := strings.Join(lines[len(lines)-c.tailLines:], "\n")
		compacted := fmt.Sprintf("%s\n...[%d lines omitted]...\n%s", head, len(lines)-c.headLines-c.tailLines, tail)
		if len(compacted) <= c.maxChars {
			return compacted
		}
	}

	return content[:c.maxChars] + fmt.Sprintf("\n...[truncated, showing %d of %d chars]", c.maxChars, len(content))
}

func containsErrorIndicators(content string) bool {
	lowerContent := strings.ToLower(content)
	for _, indicator := range []string{
		"error:", "panic:", "fatal:", "failed:",
		"stack trace:", "traceback:",
		"exception:", "--- fail", "fail:",
		"permission denied", "no such file",
		"syntax error", "parse error",
		"build failed", "compilation failed",
	} {
		if strings.Contains(lowerContent, indicator) {
			return true
		}
	}
	return false
}
