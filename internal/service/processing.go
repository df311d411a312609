package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/models"
)

const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// TaskStore is the part of the database the batch classifier needs.
type TaskStore interface {
	ListUnclassifiedTasks(ctx context.Context, limit int) ([]models.Task, error)
	UpdateTaskClassification(ctx context.Context, tx pgx.Tx, id string, c models.TaskClassification) error
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateRun(ctx context.Context, status string) (string, error)
	FinishRun(ctx context.Context, runID string, status string, summary []byte) error
}

// ProcessingService classifies tasks that entered the store without going
// through the chat flow, such as admin-created tasks.
type ProcessingService struct {
	Store     TaskStore
	Resolver  *classify.Resolver
	BatchSize int
	Logger    zerolog.Logger
}

type RunSummary struct {
	Events  []map[string]any `json:"events"`
	Counts  map[string]any   `json:"counts"`
	Samples []map[string]any `json:"samples,omitempty"`
}

// Run wraps ProcessTasks in a recorded run.
func (s *ProcessingService) Run(ctx context.Context, debug bool) (RunSummary, error) {
	runID, err := s.Store.CreateRun(ctx, RunStatusRunning)
	if err != nil {
		return RunSummary{}, err
	}
	summary, err := s.ProcessTasks(ctx, debug)
	status := RunStatusSuccess
	if err != nil {
		status = RunStatusFailed
	}
	b, _ := json.Marshal(summary)
	if finishErr := s.Store.FinishRun(ctx, runID, status, b); finishErr != nil {
		s.Logger.Error().Err(finishErr).Str("run_id", runID).Msg("failed to finish run")
	}
	return summary, err
}

// RunBatch is Run without samples, reporting how many tasks were classified.
func (s *ProcessingService) RunBatch(ctx context.Context) (int, error) {
	summary, err := s.Run(ctx, false)
	n, _ := summary.Counts["classified"].(int)
	return n, err
}

func (s *ProcessingService) ProcessTasks(ctx context.Context, debug bool) (RunSummary, error) {
	tasks, err := s.Store.ListUnclassifiedTasks(ctx, s.BatchSize)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{Counts: map[string]any{}}
	start := time.Now()
	summary.Events = append(summary.Events, map[string]any{
		"type":    "load",
		"message": "Tasks awaiting classification",
		"count":   len(tasks),
		"time":    time.Now().UTC(),
	})

	var (
		classified  int
		degraded    int
		changed     int
		writeErrors int
		byPriority  = map[string]int{}
	)

	for _, t := range tasks {
		res := s.Resolver.AnalyzeAt(ctx, t.ProblemDescription, nil, customerFromTask(t), t.CreatedAt)
		priority := res.StorePriority()
		if res.Degraded {
			degraded++
		}

		err := s.Store.WithTx(ctx, func(tx pgx.Tx) error {
			return s.Store.UpdateTaskClassification(ctx, tx, t.ID, models.TaskClassification{
				Priority:         priority,
				AIPriorityReason: res.Reasoning,
				UrgencyKeywords:  res.MatchedKeywords,
			})
		})
		if err != nil {
			writeErrors++
			s.Logger.Error().Err(err).Str("task_id", t.ID).Msg("classification write failed")
			continue
		}
		classified++
		byPriority[priority]++
		if priority != t.Priority {
			changed++
			if debug && len(summary.Samples) < 5 {
				summary.Samples = append(summary.Samples, map[string]any{
					"task_id":   t.ID,
					"previous":  t.Priority,
					"priority":  priority,
					"reasoning": res.Reasoning,
					"tags":      res.Tags,
				})
			}
		}
	}

	summary.Events = append(summary.Events, map[string]any{
		"type":     "classification",
		"message":  "Classification complete",
		"count":    classified,
		"degraded": degraded,
		"changed":  changed,
		"time":     time.Now().UTC(),
	})
	summary.Events = append(summary.Events, map[string]any{
		"type":       "db_save",
		"message":    "Classification saved",
		"errors":     writeErrors,
		"elapsed_ms": time.Since(start).Milliseconds(),
		"time":       time.Now().UTC(),
	})

	summary.Counts["tasks_processed"] = len(tasks)
	summary.Counts["classified"] = classified
	summary.Counts["degraded"] = degraded
	summary.Counts["priority_changed"] = changed
	summary.Counts["write_errors"] = writeErrors
	summary.Counts["by_priority"] = byPriority
	return summary, nil
}

func customerFromTask(t models.Task) *classify.CustomerInfo {
	info := &classify.CustomerInfo{Name: t.CustomerName, Phone: t.PhoneNumber}
	if v, ok := t.Metadata["commercial"].(bool); ok {
		info.Commercial = v
	}
	if v, ok := t.Metadata["previous_interactions"].(float64); ok {
		info.PreviousInteractions = int(v)
	}
	return info
}
