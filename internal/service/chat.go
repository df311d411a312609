package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/conversation"
	"github.com/applifix/backend/internal/events"
	"github.com/applifix/backend/internal/models"
	"github.com/applifix/backend/internal/utils"
)

const TagFailedCall = "failed-call"

var ErrEmptyMessage = errors.New("message is required")

// TaskGateway is the persistence boundary for new tasks.
type TaskGateway interface {
	CreateTask(ctx context.Context, req models.TaskCreateRequest) (string, error)
}

type ChatRequest struct {
	SessionID string
	Message   string
	Customer  *classify.CustomerInfo
	Source    string
}

type ChatResponse struct {
	SessionID      string                            `json:"session_id"`
	Reply          string                            `json:"reply"`
	Intent         conversation.Intent               `json:"intent"`
	Stage          conversation.Stage                `json:"stage"`
	TaskID         string                            `json:"task_id,omitempty"`
	Task           *models.TaskCreateResult          `json:"task,omitempty"`
	Classification *classify.ClassificationResult    `json:"classification,omitempty"`
	FailedCall     *conversation.FailedCallDetection `json:"failed_call,omitempty"`
	NeedsContact   bool                              `json:"needs_contact,omitempty"`
}

type ChatService struct {
	Sessions  *conversation.Store
	Resolver  *classify.Resolver
	Gateway   TaskGateway
	Publisher events.Publisher
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// HandleMessage runs one customer message through the conversation, and when
// the message describes a repair or a failed call, classifies it and creates
// the task. Storage failures never reach the customer.
func (svc *ChatService) HandleMessage(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ChatResponse{}, ErrEmptyMessage
	}
	source := req.Source
	if source == "" {
		source = models.SourceChat
	}

	var resp ChatResponse
	id, err := svc.Sessions.With(req.SessionID, func(s *conversation.Session) error {
		intent := s.ProcessUserMessage(text)
		mergeCustomer(s, req.Customer)
		resp.Intent = intent

		fc := s.DetectFailedCall(text)
		if fc.HasIndicator {
			resp.FailedCall = &fc
		}

		wantsTask := s.TaskID == "" && s.Stage != conversation.StageEscalation &&
			(s.AwaitingContact || fc.HasIndicator || intent.Name == conversation.IntentService || intent.Name == conversation.IntentEmergency)
		if wantsTask {
			resp.Reply = svc.createTask(ctx, s, req.Customer, fc, source, &resp)
		} else {
			resp.Reply = replyFor(s)
		}

		s.AddMessage(conversation.RoleAssistant, resp.Reply)
		resp.Stage = s.Stage
		resp.TaskID = s.TaskID
		return nil
	})
	resp.SessionID = id
	return resp, err
}

func mergeCustomer(s *conversation.Session, c *classify.CustomerInfo) {
	if c == nil {
		return
	}
	if s.Customer.Name == "" {
		s.Customer.Name = strings.TrimSpace(c.Name)
	}
	if s.Customer.Phone == "" {
		s.Customer.Phone = conversation.DigitsOnly(c.Phone)
	}
}

func (svc *ChatService) createTask(ctx context.Context, s *conversation.Session, customer *classify.CustomerInfo, fc conversation.FailedCallDetection, source string, resp *ChatResponse) string {
	info := classify.CustomerInfo{Name: s.Customer.Name, Phone: s.Customer.Phone}
	if customer != nil {
		info.Commercial = customer.Commercial
		info.PreviousInteractions = customer.PreviousInteractions
	}

	problem := s.ProblemDescription()
	if fc.HasIndicator && fc.ExtractedContext != nil {
		problem = *fc.ExtractedContext + "\n" + problem
	}
	res := svc.Resolver.Analyze(ctx, problem, s.Snippet(), &info)
	keywords := append([]string{}, res.MatchedKeywords...)
	if fc.HasIndicator {
		res.Tags = append(res.Tags, TagFailedCall)
		keywords = append(keywords, fc.MatchedKeywords...)
		source = models.SourceFailedCall
	}
	resp.Classification = &res

	name := s.Customer.Name
	if name == "" {
		name = "Chat customer"
	}
	task := models.TaskCreateRequest{
		CustomerName:       name,
		PhoneNumber:        s.Customer.Phone,
		ProblemDescription: problem,
		Priority:           res.StorePriority(),
		Status:             models.TaskStatusPending,
		Source:             source,
		AIPriorityReason:   res.Reasoning,
		UrgencyKeywords:    keywords,
		Metadata: map[string]any{
			"session_id":              s.ID,
			"intent":                  s.CurrentIntent,
			"tags":                    res.Tags,
			"category":                res.Category,
			"service_type":            res.ServiceType,
			"sentiment":               res.Sentiment,
			"confidence":              res.Confidence,
			"classification_source":   res.Source,
			"degraded":                res.Degraded,
			"estimated_response_time": res.EstimatedResponseTime,
		},
		DedupeKey: DedupeKey(s.Customer.Phone, s.ID),
	}
	if s.Customer.Location != "" {
		loc := s.Customer.Location
		task.Location = &loc
	}
	if b, err := json.Marshal(s.Snapshot()); err == nil {
		task.ChatContext = b
	}

	if err := svc.Validator.Struct(task); err != nil {
		svc.Logger.Debug().Str("session_id", s.ID).Err(err).Msg("task not ready, asking for contact")
		s.AwaitingContact = true
		resp.NeedsContact = true
		return replyAskPhone
	}

	id, err := svc.Gateway.CreateTask(ctx, task)
	if err != nil {
		svc.Logger.Error().Err(err).Str("session_id", s.ID).Msg("task create failed")
		resp.Task = &models.TaskCreateResult{Success: false, Error: "task store unavailable"}
		return replyAcknowledged
	}
	s.TaskID = id
	s.AwaitingContact = false
	resp.Task = &models.TaskCreateResult{Success: true, TaskID: id}
	svc.Logger.Info().
		Str("session_id", s.ID).
		Str("task_id", id).
		Str("priority", task.Priority).
		Bool("degraded", res.Degraded).
		Msg("task created")

	if svc.Publisher != nil {
		ev := events.TaskEvent{
			Type:      events.TypeTaskCreated,
			TaskID:    id,
			SessionID: s.ID,
			Source:    source,
			Priority:  task.Priority,
			Tags:      res.Tags,
			Degraded:  res.Degraded,
			At:        time.Now().UTC(),
		}
		if err := svc.Publisher.PublishTask(ctx, ev); err != nil {
			svc.Logger.Warn().Err(err).Str("task_id", id).Msg("task event not published")
		}
	}
	return replyTaskCreated(s.Customer.Name, s.InquiryDetails, id, res)
}

// DedupeKey identifies one task per phone number and session.
func DedupeKey(phone, sessionID string) string {
	return utils.HexKey(conversation.DigitsOnly(phone), sessionID)
}

// Snapshot returns the stored state of a session.
func (svc *ChatService) Snapshot(id string) (conversation.Snapshot, bool) {
	var snap conversation.Snapshot
	ok := svc.Sessions.View(id, func(s *conversation.Session) {
		snap = s.Snapshot()
	})
	return snap, ok
}
