package orchestrator

import (
	"context"
	"sync"
	"time"

	"gofer/internal/config"
	"gofer/internal/logging"

	"github.com/google/uuid"
)

// Session is one tracked conversation. Turns within a session run
// sequentially under its mutex; different sessions run concurrently.
type Session struct {
	ID    string
	State *ConversationState

	mu sync.Mutex

	cancelMu   sync.Mutex
	lastActive time.Time
	cancel     context.CancelFunc
}

func (s *Session) setCancel(fn context.CancelFunc) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancel = fn
	s.lastActive = time.Now()
}

func (s *Session) busy() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.cancel != nil
}

func (s *Session) idleSince() time.Time {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.lastActive
}

// SessionManager owns the in-memory session table and enforces the
// idle-eviction and capacity policies.
type SessionManager struct {
	orch *Orchestrator
	cfg  config.SessionConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a session manager backed by the given
// orchestrator.
func NewSessionManager(orch *Orchestrator, cfg config.SessionConfig) *SessionManager {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}
	return &SessionManager{
		orch:     orch,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session and returns it.
func (sm *SessionManager) Create() (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.cfg.MaxSessions {
		sm.evictIdleLocked()
	}
	if len(sm.sessions) >= sm.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	s := &Session{
		ID:         uuid.New().String(),
		State:      NewConversationState(),
		lastActive: time.Now(),
	}
	sm.sessions[s.ID] = s
	return s, nil
}

// Get returns the session with the given ID.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Count returns the number of tracked sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// RunTurn runs one turn in the named session. Concurrent calls for the
// same session serialize on the session mutex.
func (sm *SessionManager) RunTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	sm.mu.Lock()
	s, ok := sm.sessions[sessionID]
	sm.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setCancel(cancel)

	result, err := sm.orch.RunTurn(turnCtx, s.ID, s.State, userText)

	s.setCancel(nil)
	return result, err
}

// Cancel aborts the session's in-flight turn, if any.
func (sm *SessionManager) Cancel(sessionID string) bool {
	sm.mu.Lock()
	s, ok := sm.sessions[sessionID]
	sm.mu.Unlock()
	if !ok {
		return false
	}

	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()

	if cancel != nil {
		cancel()
		return true
	}
	return false
}

// Remove drops a session from the table.
func (sm *SessionManager) Remove(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sessionID)
}

// EvictIdle removes sessions idle longer than the configured maximum
// and returns how many were dropped.
func (sm *SessionManager) EvictIdle() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.evictIdleLocked()
}

func (sm *SessionManager) evictIdleLocked() int {
	cutoff := time.Now().Add(-sm.cfg.MaxIdle)
	evicted := 0
	for id, s := range sm.sessions {
		// Skip sessions with a turn in flight.
		if s.busy() {
			continue
		}
		if s.idleSince().Before(cutoff) {
			delete(sm.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		logging.Info("evicted idle sessions", "count", evicted, "remaining", len(sm.sessions))
	}
	return evicted
}

// StartEvictor runs periodic idle eviction until the context ends.
func (sm *SessionManager) StartEvictor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.EvictIdle()
			}
		}
	}()
}
