package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/conversation"
	"github.com/applifix/backend/internal/events"
	"github.com/applifix/backend/internal/models"
)

type fakeGateway struct {
	reqs []models.TaskCreateRequest
	err  error
}

func (f *fakeGateway) CreateTask(_ context.Context, req models.TaskCreateRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	return "3f2b8c1a-0000-4000-8000-000000000001", nil
}

type fakePublisher struct {
	events []events.TaskEvent
}

func (f *fakePublisher) PublishTask(_ context.Context, ev events.TaskEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testResolver() *classify.Resolver {
	return &classify.Resolver{
		Fallback: classify.NewFallback(nil),
		Hours:    classify.DefaultHours(),
		Location: time.UTC,
		Now: func() time.Time {
			return time.Date(2024, 7, 10, 14, 0, 0, 0, time.UTC)
		},
		Logger: zerolog.Nop(),
	}
}

func newTestChat(gw *fakeGateway, pub *fakePublisher) *ChatService {
	return &ChatService{
		Sessions:  conversation.NewStore(nil),
		Resolver:  testResolver(),
		Gateway:   gw,
		Publisher: pub,
		Validator: NewValidator(),
		Logger:    zerolog.Nop(),
	}
}

func TestChatAsksForPhoneThenCreatesOneTask(t *testing.T) {
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	svc := newTestChat(gw, pub)
	ctx := context.Background()

	resp, err := svc.HandleMessage(ctx, ChatRequest{Message: "my fridge is not working"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.SessionID == "" || resp.Reply != replyAskPhone || len(gw.reqs) != 0 {
		t.Fatalf("expected phone prompt, got %+v", resp)
	}

	resp, err = svc.HandleMessage(ctx, ChatRequest{SessionID: resp.SessionID, Message: "my number is 98765 43210"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(gw.reqs) != 1 || resp.TaskID == "" {
		t.Fatalf("expected task creation, got %+v", resp)
	}
	req := gw.reqs[0]
	if req.PhoneNumber != "9876543210" || req.Priority != models.TaskPriorityHigh || req.Source != models.SourceChat {
		t.Fatalf("unexpected task request: %+v", req)
	}
	if req.DedupeKey != DedupeKey("9876543210", resp.SessionID) {
		t.Fatalf("unexpected dedupe key %q", req.DedupeKey)
	}
	if len(pub.events) != 1 || pub.events[0].TaskID != resp.TaskID {
		t.Fatalf("expected one published event, got %+v", pub.events)
	}

	resp, err = svc.HandleMessage(ctx, ChatRequest{SessionID: resp.SessionID, Message: "my fridge is still not working"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(gw.reqs) != 1 || !strings.Contains(resp.Reply, "already registered") {
		t.Fatalf("expected a single task per session, got %d (%s)", len(gw.reqs), resp.Reply)
	}
}

func TestChatFailedCallEmergency(t *testing.T) {
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	svc := newTestChat(gw, pub)

	resp, err := svc.HandleMessage(context.Background(), ChatRequest{
		Message:  "I tried calling you but no one answered. Gas leak in the kitchen!",
		Customer: &classify.CustomerInfo{Name: "Asha", Phone: "98765-43210"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.FailedCall == nil || resp.FailedCall.SuggestedPriority != "high" {
		t.Fatalf("expected failed call detection, got %+v", resp.FailedCall)
	}
	if len(gw.reqs) != 1 {
		t.Fatalf("expected one task, got %d", len(gw.reqs))
	}
	req := gw.reqs[0]
	if req.Source != models.SourceFailedCall || req.Priority != models.TaskPriorityUrgent || req.CustomerName != "Asha" {
		t.Fatalf("unexpected task request: %+v", req)
	}
	if !strings.HasPrefix(req.ProblemDescription, "Gas leak in the kitchen") {
		t.Fatalf("expected extracted context first, got %q", req.ProblemDescription)
	}
	if resp.Classification == nil || !resp.Classification.HasTag(TagFailedCall) || !resp.Classification.HasTag(classify.TagEmergency) {
		t.Fatalf("unexpected classification: %+v", resp.Classification)
	}
	if !strings.Contains(resp.Reply, "switch off the power") {
		t.Fatalf("expected safety note in reply: %s", resp.Reply)
	}
	if len(pub.events) != 1 || pub.events[0].Priority != models.TaskPriorityUrgent {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestChatGatewayFailureDegrades(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection refused")}
	pub := &fakePublisher{}
	svc := newTestChat(gw, pub)

	resp, err := svc.HandleMessage(context.Background(), ChatRequest{
		Message:  "my washing machine is leaking",
		Customer: &classify.CustomerInfo{Phone: "9123456780"},
	})
	if err != nil {
		t.Fatalf("storage failure must not surface: %v", err)
	}
	if resp.Reply != replyAcknowledged || resp.TaskID != "" {
		t.Fatalf("expected generic acknowledgement, got %+v", resp)
	}
	if resp.Task == nil || resp.Task.Success {
		t.Fatalf("expected failed task result, got %+v", resp.Task)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected on failure")
	}
}

func TestChatEscalationSkipsTask(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestChat(gw, &fakePublisher{})
	resp, err := svc.HandleMessage(context.Background(), ChatRequest{
		Message:  "my AC is not cooling, I want to speak to human",
		Customer: &classify.CustomerInfo{Phone: "9123456780"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Stage != conversation.StageEscalation || resp.Reply != replyEscalation || len(gw.reqs) != 0 {
		t.Fatalf("expected escalation without task, got %+v", resp)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := newTestChat(&fakeGateway{}, &fakePublisher{})
	if _, err := svc.HandleMessage(context.Background(), ChatRequest{Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestChatSnapshot(t *testing.T) {
	svc := newTestChat(&fakeGateway{}, &fakePublisher{})
	resp, _ := svc.HandleMessage(context.Background(), ChatRequest{SessionID: "web-1", Message: "what are your timings?"})
	if resp.Reply != replyBusinessInfo {
		t.Fatalf("expected business info reply, got %q", resp.Reply)
	}
	snap, ok := svc.Snapshot("web-1")
	if !ok || snap.MessageCount != 2 || len(snap.PreviousMessages) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, ok := svc.Snapshot("missing"); ok {
		t.Fatalf("expected missing session")
	}
}

func TestPhoneValidation(t *testing.T) {
	v := NewValidator()
	type payload struct {
		Phone string `validate:"phone"`
	}
	if err := v.Struct(payload{Phone: "+91 98765 43210"}); err != nil {
		t.Fatalf("expected valid phone: %v", err)
	}
	if err := v.Struct(payload{Phone: "12345"}); err == nil {
		t.Fatalf("expected short phone to fail")
	}
}

type fakeTaskStore struct {
	tasks    []models.Task
	updates  map[string]models.TaskClassification
	runs     []string
	finished string
}

func (f *fakeTaskStore) ListUnclassifiedTasks(context.Context, int) ([]models.Task, error) {
	return f.tasks, nil
}

func (f *fakeTaskStore) UpdateTaskClassification(_ context.Context, _ pgx.Tx, id string, c models.TaskClassification) error {
	if f.updates == nil {
		f.updates = map[string]models.TaskClassification{}
	}
	f.updates[id] = c
	return nil
}

func (f *fakeTaskStore) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeTaskStore) CreateRun(_ context.Context, status string) (string, error) {
	f.runs = append(f.runs, status)
	return "run-1", nil
}

func (f *fakeTaskStore) FinishRun(_ context.Context, _ string, status string, _ []byte) error {
	f.finished = status
	return nil
}

func TestProcessingReclassifiesTasks(t *testing.T) {
	store := &fakeTaskStore{tasks: []models.Task{
		{ID: "a", ProblemDescription: "gas leak near the stove", Priority: models.TaskPriorityLow},
		{ID: "b", ProblemDescription: "please quote for routine maintenance", Priority: models.TaskPriorityLow},
	}}
	svc := &ProcessingService{Store: store, Resolver: testResolver(), Logger: zerolog.Nop()}

	summary, err := svc.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.updates["a"].Priority != models.TaskPriorityUrgent || store.updates["b"].Priority != models.TaskPriorityLow {
		t.Fatalf("unexpected classifications: %+v", store.updates)
	}
	if summary.Counts["classified"] != 2 || summary.Counts["priority_changed"] != 1 {
		t.Fatalf("unexpected counts: %+v", summary.Counts)
	}
	if len(summary.Samples) != 1 || store.finished != RunStatusSuccess {
		t.Fatalf("unexpected run bookkeeping: %+v %s", summary.Samples, store.finished)
	}
}

func TestProcessingUsesSubmissionTime(t *testing.T) {
	store := &fakeTaskStore{tasks: []models.Task{{
		ID:                 "day",
		ProblemDescription: "the fridge is making a strange noise",
		Priority:           models.TaskPriorityMedium,
		CreatedAt:          time.Date(2024, 7, 10, 11, 0, 0, 0, time.UTC),
	}}}
	resolver := testResolver()
	resolver.Now = func() time.Time { return time.Date(2024, 7, 11, 2, 0, 0, 0, time.UTC) }
	svc := &ProcessingService{Store: store, Resolver: resolver, Logger: zerolog.Nop()}

	if _, err := svc.ProcessTasks(context.Background(), false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := store.updates["day"].Priority; got != models.TaskPriorityMedium {
		t.Fatalf("daytime task reclassified at night should stay medium, got %s", got)
	}
}
