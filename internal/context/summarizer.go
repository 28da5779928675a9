package context

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gofer/internal/client"

	"google.golang.org/genai"
)

const summarizationPrompt = `Summarize this development conversation for context preservation.

PRIORITIES (highest to lowest):
1. Specific file paths and modified functions/methods
2. Error messages encountered and how they were resolved
3. Dependencies discovered between components
4. Configuration values set or changed
5. Key architectural decisions and their reasoning
6. Unresolved issues or next steps

DO NOT include:
- Verbose tool output or raw logs
- Intermediate failed attempts (only final solutions)
- Repeated file reads of the same content

Format: Use bullet points grouped by topic. Start each group with the relevant file path.

CONVERSATION TO SUMMARIZE:
%s

SUMMARY:`

// Summarizer condenses older conversation history into a single summary
// turn, using the same completion client as the main loop.
type Summarizer struct {
	client client.Client
}

// NewSummarizer creates a new summarizer.
func NewSummarizer(c client.Client) *Summarizer {
	return &Summarizer{client: c}
}

// Summarize creates a summary of the given messages. The summary is
// returned as a user-role content ready to splice into history.
func (s *Summarizer) Summarize(ctx context.Context, messages []*genai.Content) (*genai.Content, error) {
	formatted := s.formatMessages(messages)
	prompt := fmt.Sprintf(summarizationPrompt, formatted)

	stream, err := s.client.SendMessage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarization request failed: %w", err)
	}

	resp, err := stream.Collect()
	if err != nil {
		return nil, fmt.Errorf("summarization response failed: %w", err)
	}

	summaryText := fmt.Sprintf("[Previous conversation summary]\n%s\n[End of summary]", resp.Text)
	return genai.NewContentFromText(summaryText, genai.RoleUser), nil
}

// formatMessages renders messages as plain text for the summary prompt,
// trimming very large blocks while keeping their head and tail.
func (s *Summarizer) formatMessages(messages []*genai.Content) string {
	var builder strings.Builder

	for _, msg := range messages {
		role := "User"
		if msg.Role == genai.RoleModel {
			role = "Assistant"
		}

		for _, part := range msg.Parts {
			if part.Text != "" {
				text := part.Text
				if len(text) > 4000 {
					lines := strings.Split(text, "\n")
					if len(lines) > 100 {
						head := strings.Join(lines[:40], "\n")
						tail := strings.Join(lines[len(lines)-40:], "\n")
						text = fmt.Sprintf("%s\n\n... [%d lines skipped] ...\n\n%s", head, len(lines)-80, tail)
					} else {
						text = text[:4000] + "... [truncated]"
					}
				}
				builder.WriteString(fmt.Sprintf("%s: %s\n\n", role, text))
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				builder.WriteString(fmt.Sprintf("%s: [Called tool: %s with args: %s]\n\n", role, part.FunctionCall.Name, string(args)))
			}
			if part.FunctionResponse != nil {
				respContent := "[Tool response]"
				if content, ok := part.FunctionResponse.Response["content"].(string); ok {
					if len(content) > 1000 {
						lines := strings.Split(content, "\n")
						if len(lines) > 40 {
							head := strings.Join(lines[:20], "\n")
							tail := strings.Join(lines[len(lines)-20:], "\n")
							content = fmt.Sprintf("%s\n\n... [%d lines skipped] ...\n\n%s", head, len(lines)-40, tail)
						} else {
							content = content[:1000] + "..."
						}
					}
					respContent = content
				} else if errStr, ok := part.FunctionResponse.Response["error"].(string); ok && errStr != "" {
					respContent = "Error: " + errStr
				}
				builder.WriteString(fmt.Sprintf("Tool (%s) Result: %s\n\n", part.FunctionResponse.Name, respContent))
			}
		}
	}

	return builder.String()
}
