package db

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/applifix/backend/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateTaskIsIdempotentOnDedupeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := models.TaskCreateRequest{
		CustomerName:       "Test Customer",
		PhoneNumber:        "9876543210",
		ProblemDescription: "AC completely dead",
		Priority:           models.TaskPriorityUrgent,
		Status:             models.TaskStatusPending,
		Source:             models.SourceChat,
		AIPriorityReason:   "Emergency situation detected: completely dead",
		UrgencyKeywords:    []string{"completely dead"},
		ChatContext:        json.RawMessage(`{"stage":"inquiry"}`),
		DedupeKey:          "test-" + uuid.NewString(),
	}
	first, err := s.CreateTask(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateTask(ctx, req)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first != second {
		t.Fatalf("expected same id, got %s and %s", first, second)
	}

	task, err := s.GetTask(ctx, first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Priority != models.TaskPriorityUrgent || task.ClassifiedAt == nil {
		t.Fatalf("unexpected task: %+v", task)
	}

	if err := s.UpdateTaskStatus(ctx, first, models.TaskStatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := s.UpdateTaskStatus(ctx, uuid.NewString(), models.TaskStatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnclassifiedTasksAndRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.CreateTask(ctx, models.TaskCreateRequest{
		CustomerName:       "Walk-in",
		PhoneNumber:        "9123456780",
		ProblemDescription: "fridge making noise",
		Priority:           models.TaskPriorityMedium,
		Status:             models.TaskStatusPending,
		Source:             models.SourceAdmin,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := s.ListUnclassifiedTasks(ctx, 500)
	if err != nil {
		t.Fatalf("list unclassified: %v", err)
	}
	found := false
	for _, task := range pending {
		found = found || task.ID == id
	}
	if !found {
		t.Fatalf("expected %s among unclassified tasks", id)
	}

	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		return s.UpdateTaskClassification(ctx, tx, id, models.TaskClassification{
			Priority:         models.TaskPriorityLow,
			AIPriorityReason: "Routine request detected",
		})
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	task, err := s.GetTask(ctx, id)
	if err != nil || task.ClassifiedAt == nil || task.Priority != models.TaskPriorityLow {
		t.Fatalf("classification not stored: %+v %v", task, err)
	}

	runID, err := s.CreateRun(ctx, "RUNNING")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := s.FinishRun(ctx, runID, "DONE", []byte(`{"counts":{}}`)); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	latest, err := s.GetLatestRun(ctx)
	if err != nil || latest.Status == "" {
		t.Fatalf("latest run: %+v %v", latest, err)
	}
}
