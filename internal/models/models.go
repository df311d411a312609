package models

import (
	"encoding/json"
	"time"
)

const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

const (
	SourceChat       = "chat"
	SourceTelegram   = "telegram"
	SourceAdmin      = "admin"
	SourceFailedCall = "failed_call"
)

type Task struct {
	ID                 string          `json:"id"`
	CustomerName       string          `json:"customer_name"`
	PhoneNumber        string          `json:"phone_number"`
	ProblemDescription string          `json:"problem_description"`
	Priority           string          `json:"priority"`
	Status             string          `json:"status"`
	Source             string          `json:"source"`
	Location           *string         `json:"location,omitempty"`
	AIPriorityReason   string          `json:"ai_priority_reason"`
	UrgencyKeywords    []string        `json:"urgency_keywords,omitempty"`
	ChatContext        json.RawMessage `json:"chat_context,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ClassifiedAt       *time.Time      `json:"classified_at,omitempty"`
}

// TaskCreateRequest is the payload handed to the task store.
type TaskCreateRequest struct {
	CustomerName       string          `json:"customer_name" validate:"required"`
	PhoneNumber        string          `json:"phone_number" validate:"required,phone"`
	ProblemDescription string          `json:"problem_description" validate:"required"`
	Priority           string          `json:"priority" validate:"required,oneof=low medium high urgent"`
	Status             string          `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
	Source             string          `json:"source" validate:"required,oneof=chat telegram admin failed_call"`
	Location           *string         `json:"location,omitempty"`
	AIPriorityReason   string          `json:"ai_priority_reason"`
	UrgencyKeywords    []string        `json:"urgency_keywords,omitempty"`
	ChatContext        json.RawMessage `json:"chat_context,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	DedupeKey          string          `json:"-"`
}

type TaskCreateResult struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TaskClassification struct {
	Priority         string
	AIPriorityReason string
	UrgencyKeywords  []string
}

type TaskFilter struct {
	Status   string
	Priority string
	Source   string
	Query    string
	Limit    int
	Offset   int
}

type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Status     string          `json:"status"`
	Summary    json.RawMessage `json:"summary"`
}
