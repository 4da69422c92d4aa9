package tasks

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned for missing tasks and for tasks owned by a
	// different user, so that cross-user probes cannot distinguish the two.
	ErrNotFound = errors.New("task not found")

	// ErrTitleRequired is a validation failure, not a store failure.
	ErrTitleRequired = errors.New("task title is required")
)

// Store is the per-user task collection. Every operation is scoped by the
// owner id; an id owned by someone else behaves exactly like a missing id.
type Store interface {
	Create(ctx context.Context, owner string, fields Fields) (Task, error)
	Get(ctx context.Context, owner, id string) (Task, error)
	Find(ctx context.Context, owner string, filter Filter, limit int) ([]Task, error)
	Update(ctx context.Context, owner, id string, patch Patch) (Task, error)
	Complete(ctx context.Context, owner, id string) (Task, error)
	Delete(ctx context.Context, owner, id string) error
	Close() error
}
