package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TranscriptRecord is one persisted conversational message.
type TranscriptRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// History persists session transcripts beyond process lifetime.
type History interface {
	SaveMessage(ctx context.Context, record TranscriptRecord) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]TranscriptRecord, error)
	Close() error
}

// NewHistory creates a postgres-backed history when configured, otherwise
// in-memory.
func NewHistory(ctx context.Context, databaseURL string) (History, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryHistory(), nil
	}
	return NewPostgresHistory(ctx, databaseURL)
}

// MemoryHistory is the in-process transcript store for local/dev use.
type MemoryHistory struct {
	mu      sync.RWMutex
	records map[string][]TranscriptRecord
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{records: make(map[string][]TranscriptRecord)}
}

func (h *MemoryHistory) SaveMessage(_ context.Context, record TranscriptRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	h.records[record.SessionID] = append(h.records[record.SessionID], record)
	return nil
}

func (h *MemoryHistory) RecentMessages(_ context.Context, sessionID string, limit int) ([]TranscriptRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	records := h.records[sessionID]
	if limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}
	out := make([]TranscriptRecord, len(records))
	copy(out, records)
	return out, nil
}

func (h *MemoryHistory) Close() error { return nil }
