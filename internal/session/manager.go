package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Manager is the in-process session registry. Callers must serialize turns
// per session with Lock/Unlock: the workflow engine assumes at most one
// in-flight turn per session and does not lock on its own.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	turnLocks         map[string]*sync.Mutex
	inactivityTimeout time.Duration
	history           History
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		turnLocks:         make(map[string]*sync.Mutex),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetHistory mirrors appended messages into a persistent transcript store.
func (m *Manager) SetHistory(h History) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = h
}

func (m *Manager) Create(userID string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.turnLocks[s.ID] = &sync.Mutex{}
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Lock acquires the per-session turn lock, serializing turns for one
// session while leaving other sessions free to run concurrently.
func (m *Manager) Lock(sessionID string) (func(), error) {
	m.mu.RLock()
	lock, ok := m.turnLocks[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	lock.Lock()
	return lock.Unlock, nil
}

// AppendMessage adds one message to the session transcript.
func (m *Manager) AppendMessage(sessionID string, role Role, content string) error {
	now := time.Now().UTC()

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	s.Messages = append(s.Messages, Message{Role: role, Content: content, At: now})
	s.LastActivityAt = now
	userID := s.UserID
	history := m.history
	m.mu.Unlock()

	if history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = history.SaveMessage(ctx, TranscriptRecord{
			SessionID: sessionID,
			UserID:    userID,
			Role:      string(role),
			Content:   content,
			CreatedAt: now,
		})
	}
	return nil
}

// SaveContext persists the turn context produced by a completed turn. The
// workflow engine is the single writer.
func (m *Manager) SaveContext(sessionID string, ctx TurnContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Context = ctx
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor expires inactive sessions in the background.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
	}
}

func clone(s *Session) *Session {
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	if s.Context.FoundTasks != nil {
		c.Context.FoundTasks = append(c.Context.FoundTasks[:0:0], s.Context.FoundTasks...)
	}
	if s.Context.PendingTask != nil {
		draft := *s.Context.PendingTask
		c.Context.PendingTask = &draft
	}
	if s.Context.UserIntent != nil {
		ui := *s.Context.UserIntent
		c.Context.UserIntent = &ui
	}
	if s.Context.Operation != nil {
		op := *s.Context.Operation
		c.Context.Operation = &op
	}
	return &c
}
