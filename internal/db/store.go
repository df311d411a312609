package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/applifix/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			dedupe_key TEXT UNIQUE,
			customer_name TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			problem_description TEXT NOT NULL,
			priority TEXT NOT NULL CHECK (priority IN ('low','medium','high','urgent')),
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','completed','cancelled')),
			source TEXT NOT NULL,
			location TEXT,
			ai_priority_reason TEXT NOT NULL DEFAULT '',
			urgency_keywords TEXT[] NOT NULL DEFAULT '{}',
			chat_context JSONB,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			classified_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_unclassified ON tasks(created_at) WHERE classified_at IS NULL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			status TEXT NOT NULL,
			summary JSONB,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);`,
	}
	for _, q := range queries {
		if _, err := s.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateTask inserts a task and returns its id. Requests sharing a dedupe key
// resolve to the task created first.
func (s *Store) CreateTask(ctx context.Context, req models.TaskCreateRequest) (string, error) {
	var dedupe *string
	if req.DedupeKey != "" {
		dedupe = &req.DedupeKey
	}
	keywords := req.UrgencyKeywords
	if keywords == nil {
		keywords = []string{}
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	var chatContext any
	if len(req.ChatContext) > 0 {
		chatContext = string(req.ChatContext)
	}
	status := req.Status
	if status == "" {
		status = models.TaskStatusPending
	}

	var id string
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO tasks (dedupe_key, customer_name, phone_number, problem_description, priority, status, source,
			location, ai_priority_reason, urgency_keywords, chat_context, metadata, classified_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12, CASE WHEN $9 = '' THEN NULL ELSE NOW() END)
		ON CONFLICT (dedupe_key) DO UPDATE SET updated_at = NOW()
		RETURNING id::text
	`, dedupe, req.CustomerName, req.PhoneNumber, req.ProblemDescription, req.Priority, status, req.Source,
		req.Location, req.AIPriorityReason, keywords, chatContext, metadata).Scan(&id)
	return id, err
}

const taskColumns = `id::text, customer_name, phone_number, problem_description, priority, status, source,
	location, ai_priority_reason, urgency_keywords, chat_context, metadata, created_at, updated_at, classified_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.CustomerName, &t.PhoneNumber, &t.ProblemDescription, &t.Priority, &t.Status, &t.Source,
		&t.Location, &t.AIPriorityReason, &t.UrgencyKeywords, &t.ChatContext, &t.Metadata, &t.CreatedAt, &t.UpdatedAt, &t.ClassifiedAt)
	return t, err
}

func (s *Store) ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	var wheres []string
	if f.Status != "" {
		args = append(args, f.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		wheres = append(wheres, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		wheres = append(wheres, fmt.Sprintf("(problem_description ILIKE $%d OR customer_name ILIKE $%d OR phone_number ILIKE $%d)", len(args), len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	t, err := scanTask(s.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tasks SET status = $1, updated_at = NOW() WHERE id::text = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnclassifiedTasks returns tasks that never went through the classifier,
// oldest first.
func (s *Store) ListUnclassifiedTasks(ctx context.Context, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE classified_at IS NULL AND status IN ('pending','in_progress')
		ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTaskClassification(ctx context.Context, tx pgx.Tx, id string, c models.TaskClassification) error {
	keywords := c.UrgencyKeywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err := tx.Exec(ctx, `
		UPDATE tasks
		SET priority = $1, ai_priority_reason = $2, urgency_keywords = $3, classified_at = NOW(), updated_at = NOW()
		WHERE id::text = $4
	`, c.Priority, c.AIPriorityReason, keywords, id)
	return err
}

func (s *Store) CreateRun(ctx context.Context, status string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `INSERT INTO runs (status, started_at) VALUES ($1, NOW()) RETURNING id::text`, status).Scan(&id)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE runs SET status = $1, summary = $2::jsonb, finished_at = NOW() WHERE id::text = $3`, status, string(summary), runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context) (models.Run, error) {
	var r models.Run
	err := s.Pool.QueryRow(ctx, `SELECT id::text, started_at, finished_at, status, summary FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Run{}, ErrNotFound
	}
	return r, err
}
