package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSweeper struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (c *countingSweeper) EvictIdle(ttl time.Duration) int {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 1
}

type countingReclassifier struct {
	calls atomic.Int32
}

func (c *countingReclassifier) RunBatch(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSchedulerRunsJobs(t *testing.T) {
	sweeper := &countingSweeper{}
	reclass := &countingReclassifier{}
	s, err := New(Config{
		SessionTTL:       time.Minute,
		SessionSweepSpec: "@every 1s",
		ReclassifySpec:   "@every 1s",
	}, sweeper, reclass, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := s.Jobs(); len(got) != 2 {
		t.Fatalf("expected two jobs, got %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for sweeper.calls.Load() == 0 || reclass.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("jobs did not run: sweep=%d reclassify=%d", sweeper.calls.Load(), reclass.calls.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Duration(sweeper.ttl.Load()) != time.Minute {
		t.Fatalf("unexpected ttl %v", time.Duration(sweeper.ttl.Load()))
	}
}

func TestSchedulerSkipsDisabledJobs(t *testing.T) {
	s, err := New(Config{SessionSweepSpec: "@every 5m"}, &countingSweeper{}, &countingReclassifier{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "session_sweep" {
		t.Fatalf("expected only the sweep job, got %v", got)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := New(Config{SessionSweepSpec: "not a schedule"}, &countingSweeper{}, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}
