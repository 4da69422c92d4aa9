package tasks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process store used for local/dev runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) Create(_ context.Context, owner string, fields Fields) (Task, error) {
	owner = strings.TrimSpace(owner)
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		return Task{}, ErrTitleRequired
	}

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.NewString(),
		UserID:      owner,
		Title:       title,
		Description: strings.TrimSpace(fields.Description),
		Priority:    normalizePriority(fields.Priority),
		Status:      normalizeStatus(fields.Status),
		DueDate:     fields.DueDate,
		Source:      normalizeSource(fields.Source),
		SourceEmail: strings.TrimSpace(fields.SourceEmail),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Status == StatusCompleted {
		task.CompletedAt = &now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return task.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, owner, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task := s.ownedLocked(owner, id)
	if task == nil {
		return Task{}, ErrNotFound
	}
	return task.Clone(), nil
}

func (s *MemoryStore) Find(_ context.Context, owner string, filter Filter, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, limit)
	for _, task := range s.tasks {
		if task.UserID != owner {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, owner, id string, patch Patch) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.ownedLocked(owner, id)
	if task == nil {
		return Task{}, ErrNotFound
	}

	now := time.Now().UTC()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return Task{}, ErrTitleRequired
		}
		task.Title = title
	}
	if patch.Description != nil {
		task.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		task.Priority = normalizePriority(*patch.Priority)
	}
	if patch.Status != nil {
		next := normalizeStatus(*patch.Status)
		if next == StatusCompleted && task.Status != StatusCompleted {
			task.CompletedAt = &now
		}
		if next != StatusCompleted {
			task.CompletedAt = nil
		}
		task.Status = next
	}
	if patch.DueDate != nil {
		due := *patch.DueDate
		task.DueDate = &due
	}
	task.UpdatedAt = now
	return task.Clone(), nil
}

func (s *MemoryStore) Complete(_ context.Context, owner, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.ownedLocked(owner, id)
	if task == nil {
		return Task{}, ErrNotFound
	}

	now := time.Now().UTC()
	if task.Status != StatusCompleted {
		task.Status = StatusCompleted
		task.CompletedAt = &now
	}
	task.UpdatedAt = now
	return task.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownedLocked(owner, id) == nil {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ownedLocked(owner, id string) *Task {
	task, ok := s.tasks[strings.TrimSpace(id)]
	if !ok || task.UserID != strings.TrimSpace(owner) {
		return nil
	}
	return task
}
