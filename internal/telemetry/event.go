package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	// EventLLMUsage records token consumption for a model call.
	EventLLMUsage EventType = "llm_usage"

	// EventToolError records a failed tool invocation.
	EventToolError EventType = "tool_error"

	// EventToolCall records a completed tool invocation.
	EventToolCall EventType = "tool_call"

	// EventDegradation records a non-fatal failure inside a pipeline that
	// degraded its output instead of failing the operation.
	EventDegradation EventType = "degradation"
)

// Event is a single telemetry record. Events are written as JSONL and
// carry only what is needed to diagnose behavior after the fact.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`

	// Operation names the user-facing operation this event belongs to
	// (e.g., "search_code", "run_turn").
	Operation string `json:"operation,omitempty"`

	// Reason describes a degradation or error cause in one short phrase.
	Reason string `json:"reason,omitempty"`

	// Tool invocation fields.
	ToolName string         `json:"tool_name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration_ms,omitempty"`

	// Model usage fields.
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// NewEvent creates an event with a generated ID and current timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// Degradation builds a degradation event for the given operation.
func Degradation(operation, reason string) Event {
	e := NewEvent(EventDegradation)
	e.Operation = operation
	e.Reason = reason
	return e
}

// SanitizeArgs copies args with sensitive values redacted.
func SanitizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	sensitiveKeys := map[string]bool{
		"password":    true,
		"secret":      true,
		"token":       true,
		"api_key":     true,
		"apikey":      true,
		"credentials": true,
		"auth":        true,
	}

	sanitized := make(map[string]any, len(args))
	for k, v := range args {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}

	return sanitized
}

// TruncateResult truncates a result string to the specified maximum length.
func TruncateResult(result string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1000
	}
	if len(result) <= maxLen {
		return result
	}
	return result[:maxLen] + "...[truncated]"
}
