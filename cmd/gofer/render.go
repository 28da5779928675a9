package main

import (
	"fmt"
	"strings"

	"gofer/internal/orchestrator"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// renderer formats assistant output for the terminal. Markdown goes
// through glamour; if the renderer cannot be built the raw text is
// printed as-is.
type renderer struct {
	markdown *glamour.TermRenderer

	promptStyle lipgloss.Style
	traceStyle  lipgloss.Style
	errStyle    lipgloss.Style
	noticeStyle lipgloss.Style
}

func newRenderer() *renderer {
	md, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)

	return &renderer{
		markdown:    md,
		promptStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		traceStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		noticeStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func (r *renderer) Prompt() string {
	return r.promptStyle.Render("gofer>") + " "
}

func (r *renderer) Notice(text string) string {
	return r.noticeStyle.Render(text)
}

func (r *renderer) Markdown(text string) string {
	if r.markdown == nil {
		return text
	}
	rendered, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// PrintTrace shows the tool calls a turn made, one line each.
func (r *renderer) PrintTrace(trace []orchestrator.TraceEntry) {
	for _, entry := range trace {
		line := fmt.Sprintf("  [%s depth=%d]", entry.Invocation.Name, entry.Invocation.CallDepth)
		switch {
		case entry.Outcome.Skipped:
			line += " skipped: " + entry.Outcome.Error
			fmt.Println(r.traceStyle.Render(line))
		case entry.Outcome.Success:
			fmt.Println(r.traceStyle.Render(line + " ok"))
		default:
			line += " failed: " + firstLine(entry.Outcome.Error)
			fmt.Println(r.errStyle.Render(line))
		}
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
