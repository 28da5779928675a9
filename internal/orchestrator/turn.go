package orchestrator

import (
	"sync"

	"google.golang.org/genai"
)

// ToolInvocation records one proposed tool call.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	CallDepth int            `json:"call_depth"`
}

// ToolOutcome records the result of one tool invocation (or the reason
// it was skipped).
type ToolOutcome struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"` // validation failure or depth guard, not executed
}

// TraceEntry pairs an invocation with its outcome, in execution order.
type TraceEntry struct {
	Invocation ToolInvocation `json:"invocation"`
	Outcome    ToolOutcome    `json:"outcome"`
}

// TurnResult is what one completed turn hands back to the caller.
type TurnResult struct {
	Message string       `json:"message"`
	Trace   []TraceEntry `json:"tool_trace"`
}

// ConversationState is the append-only history of one session. It is
// owned by exactly one orchestrator run at a time; turns are appended,
// never edited in place. The only structural rewrite is the atomic
// summary replacement performed under the lock.
type ConversationState struct {
	mu      sync.Mutex
	history []*genai.Content
}

// NewConversationState creates an empty conversation.
func NewConversationState() *ConversationState {
	return &ConversationState{}
}

// Append adds a content turn to the history.
func (s *ConversationState) Append(content *genai.Content) {
	if content == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, content)
}

// Snapshot returns a copy of the history slice. The contents themselves
// are shared; callers must not mutate them.
func (s *ConversationState) Snapshot() []*genai.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*genai.Content, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns.
func (s *ConversationState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// ReplaceWithSummary atomically swaps the middle of the history for a
// summary turn, keeping the first `head` turns and last `tail` turns raw.
// Returns false if the history is too short to compress.
func (s *ConversationState) ReplaceWithSummary(summary *genai.Content, head, tail int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) <= head+tail+1 {
		return false
	}

	rebuilt := make([]*genai.Content, 0, head+tail+1)
	rebuilt = append(rebuilt, s.history[:head]...)
	rebuilt = append(rebuilt, summary)
	rebuilt = append(rebuilt, s.history[len(s.history)-tail:]...)
	s.history = rebuilt
	return true
}

// Middle returns the turns that would be compressed by a summary
// replacement with the given head/tail retention.
func (s *ConversationState) Middle(head, tail int) []*genai.Content {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) <= head+tail+1 {
		return nil
	}
	middle := s.history[head : len(s.history)-tail]
	out := make([]*genai.Content, len(middle))
	copy(out, middle)
	return out
}

// Reset clears the history.
func (s *ConversationState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
