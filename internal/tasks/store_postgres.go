package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTaskSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			due_date TIMESTAMPTZ NULL,
			completed_at TIMESTAMPTZ NULL,
			source TEXT NOT NULL DEFAULT 'chat',
			source_email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks (user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const taskColumns = `id, user_id, title, description, priority, status, due_date, completed_at, source, source_email, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, owner string, fields Fields) (Task, error) {
	owner = strings.TrimSpace(owner)
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		return Task{}, ErrTitleRequired
	}

	now := time.Now().UTC()
	task := Task{
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		string(task.Priority),
		string(task.Status),
		task.DueDate,
		task.CompletedAt,
		string(task.Source),
		task.SourceEmail,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) Get(ctx context.Context, owner, id string) (Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id=$1 AND user_id=$2`,
		strings.TrimSpace(id), strings.TrimSpace(owner),
	)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) Find(ctx context.Context, owner string, filter Filter, limit int) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id=$1`
	args := []any{strings.TrimSpace(owner)}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, string(filter.Priority))
		query += fmt.Sprintf(" AND priority=$%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	// limit <= 0 means unbounded, matching the in-memory store.
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, owner, id string, patch Patch) (Task, error) {
	task, err := s.Get(ctx, owner, id)
	if err != nil {
		return Task{}, err
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

	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET title=$1, description=$2, priority=$3, status=$4, due_date=$5,
		        completed_at=$6, updated_at=$7
		  WHERE id=$8 AND user_id=$9`,
		task.Title,
		task.Description,
		string(task.Priority),
		string(task.Status),
		task.DueDate,
		task.CompletedAt,
		task.UpdatedAt,
		task.ID,
		task.UserID,
	)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Task{}, ErrNotFound
	}
	return task, nil
}

func (s *PostgresStore) Complete(ctx context.Context, owner, id string) (Task, error) {
	status := StatusCompleted
	return s.Update(ctx, owner, id, Patch{Status: &status})
}

func (s *PostgresStore) Delete(ctx context.Context, owner, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id=$1 AND user_id=$2`,
		strings.TrimSpace(id), strings.TrimSpace(owner),
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		task     Task
		priority string
		status   string
		source   string
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&priority,
		&status,
		&task.DueDate,
		&task.CompletedAt,
		&source,
		&task.SourceEmail,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Priority = Priority(priority)
	task.Status = Status(status)
	task.Source = Source(source)
	return task, nil
}
