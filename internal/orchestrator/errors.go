package orchestrator

import (
	"errors"
	"fmt"
)

// ErrDepthExceeded marks a turn that hit the tool-call depth guard.
var ErrDepthExceeded = errors.New("maximum tool-call depth exceeded")

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions is returned when the session cap is reached and no
// idle session can be evicted.
var ErrTooManySessions = errors.New("too many active sessions")

// FatalTurnError marks a turn that could not complete because the
// completion provider stayed unavailable through all retries. The turn
// still produces a user-visible message; this error classifies why.
type FatalTurnError struct {
	Reason string
	Err    error
}

func (e *FatalTurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("turn failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("turn failed: %s", e.Reason)
}

func (e *FatalTurnError) Unwrap() error {
	return e.Err
}

// ContextOverflowError marks a conversation that exceeds the model's
// input window even after summarization.
type ContextOverflowError struct {
	Tokens    int
	MaxTokens int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("conversation exceeds context window even after summarization (%d of %d tokens)", e.Tokens, e.MaxTokens)
}
