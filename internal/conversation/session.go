package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/rules"
)

type Stage string

const (
	StageGreeting   Stage = "greeting"
	StageInquiry    Stage = "inquiry"
	StageDetails    Stage = "details"
	StageResolution Stage = "resolution"
	StageEscalation Stage = "escalation"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EscalationMessageLimit is the number of messages after which an unresolved
// session is handed to a human.
const EscalationMessageLimit = 12

var (
	complexKeywords   = []string{"installation", "warranty claim", "bulk order", "commercial", "dispute"}
	complaintKeywords = []string{"complaint", "complain", "refund", "worst service", "terrible service", "not satisfied", "unhappy", "cheated", "poor service"}
	humanKeywords     = []string{
		"speak to human", "talk to human", "speak to a human", "talk to a human", "real person",
		"human agent", "speak to someone", "talk to someone", "customer care", "speak to manager",
		"talk to manager", "speak to a person", "talk to a person",
	}
)

type CustomerInfo struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
}

// Session is the per-conversation state. Callers serialize access through
// Store.With; a Session is never shared between conversations.
type Session struct {
	ID               string
	Customer         CustomerInfo
	CurrentIntent    string
	IntentConfidence float64
	InquiryDetails   map[string]string
	Stage            Stage
	MessageCount     int
	TaskID           string
	EscalationReason string
	// AwaitingContact is set while a task is pending on a phone number.
	AwaitingContact  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time

	history    history
	recognizer *Recognizer
	now        func() time.Time
	mu         sync.Mutex
}

func NewSession(id string, recognizer *Recognizer) *Session {
	if recognizer == nil {
		recognizer = NewRecognizer(nil)
	}
	s := &Session{ID: id, recognizer: recognizer, now: time.Now}
	s.Reset()
	return s
}

// Reset returns the session to a fresh greeting state, keeping its ID.
func (s *Session) Reset() {
	now := s.now().UTC()
	s.Customer = CustomerInfo{}
	s.CurrentIntent = IntentGeneral
	s.IntentConfidence = 0
	s.InquiryDetails = map[string]string{}
	s.Stage = StageGreeting
	s.MessageCount = 0
	s.TaskID = ""
	s.EscalationReason = ""
	s.AwaitingContact = false
	s.CreatedAt = now
	s.UpdatedAt = now
	s.history.reset()
}

// AddMessage appends to the history window; only the newest MaxHistory
// messages are kept.
func (s *Session) AddMessage(role, text string) {
	now := s.now().UTC()
	s.history.add(Message{Role: role, Text: text, Timestamp: now})
	s.MessageCount++
	s.UpdatedAt = now
}

func (s *Session) Messages() []Message {
	return s.history.items()
}

func (s *Session) RecognizeIntent(message string) Intent {
	return s.recognizer.Recognize(message)
}

func (s *Session) DetectFailedCall(message string) FailedCallDetection {
	return s.recognizer.DetectFailedCall(message)
}

// ProcessUserMessage records a customer message and advances the state
// machine by at most one step.
func (s *Session) ProcessUserMessage(text string) Intent {
	s.AddMessage(RoleUser, text)
	intent := s.RecognizeIntent(text)
	s.CurrentIntent = intent.Name
	s.IntentConfidence = intent.Confidence
	for k, v := range intent.Entities {
		s.InquiryDetails[k] = v
	}
	if loc, ok := intent.Entities[EntityLocation]; ok {
		s.Customer.Location = loc
	}
	if phone := ExtractPhone(text); phone != "" {
		s.Customer.Phone = phone
	}
	if name := ExtractName(text); name != "" {
		s.Customer.Name = name
	}
	s.UpdateStage()
	return intent
}

// UpdateStage applies the transition rules once.
func (s *Session) UpdateStage() {
	if reason, ok := s.escalationReason(); ok {
		if s.Stage != StageEscalation {
			s.EscalationReason = reason
		}
		s.Stage = StageEscalation
		return
	}
	switch s.Stage {
	case StageGreeting:
		if s.CurrentIntent != IntentGeneral {
			s.Stage = StageInquiry
		}
	case StageInquiry:
		if s.hasEnoughDetails() {
			s.Stage = StageDetails
		}
	case StageDetails:
		if s.resolvable() {
			s.Stage = StageResolution
		}
	}
}

func (s *Session) ShouldEscalate() bool {
	_, ok := s.escalationReason()
	return ok
}

func (s *Session) escalationReason() (string, bool) {
	if s.Stage == StageEscalation {
		return s.EscalationReason, true
	}
	if last, ok := s.history.lastByRole(RoleUser); ok {
		text := rules.Normalize(last.Text)
		switch {
		case rules.ContainsAny(text, humanKeywords):
			return "human_requested", true
		case rules.ContainsAny(text, complaintKeywords):
			return "complaint", true
		case rules.ContainsAny(text, complexKeywords):
			return "complex_request", true
		}
	}
	if s.MessageCount > EscalationMessageLimit && s.Stage != StageResolution {
		return "conversation_too_long", true
	}
	return "", false
}

func (s *Session) hasEnoughDetails() bool {
	return len(s.InquiryDetails) > 2
}

func (s *Session) resolvable() bool {
	switch s.CurrentIntent {
	case IntentBusinessInfo:
		return true
	case IntentService, IntentSpareParts:
		return s.hasEnoughDetails()
	default:
		return false
	}
}

// Snippet is the conversation context handed to the classifier prompt.
func (s *Session) Snippet() *classify.ConversationSnippet {
	snip := &classify.ConversationSnippet{
		Intent:   s.CurrentIntent,
		Entities: map[string]string{},
	}
	for k, v := range s.InquiryDetails {
		snip.Entities[k] = v
	}
	for _, m := range s.history.items() {
		if m.Role == RoleUser {
			snip.Recent = append(snip.Recent, m.Text)
		}
	}
	return snip
}

// ProblemDescription joins the customer's messages still in the window.
func (s *Session) ProblemDescription() string {
	var parts []string
	for _, m := range s.history.items() {
		if m.Role == RoleUser {
			parts = append(parts, strings.TrimSpace(m.Text))
		}
	}
	return strings.Join(parts, "\n")
}

type Snapshot struct {
	ID               string            `json:"id"`
	Customer         CustomerInfo      `json:"customer"`
	CurrentIntent    string            `json:"current_intent"`
	IntentConfidence float64           `json:"intent_confidence"`
	InquiryDetails   map[string]string `json:"inquiry_details"`
	Stage            Stage             `json:"stage"`
	MessageCount     int               `json:"message_count"`
	TaskID           string            `json:"task_id,omitempty"`
	EscalationReason string            `json:"escalation_reason,omitempty"`
	AwaitingContact  bool              `json:"awaiting_contact"`
	PreviousMessages []Message         `json:"previous_messages"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (s *Session) Snapshot() Snapshot {
	details := make(map[string]string, len(s.InquiryDetails))
	for k, v := range s.InquiryDetails {
		details[k] = v
	}
	return Snapshot{
		ID:               s.ID,
		Customer:         s.Customer,
		CurrentIntent:    s.CurrentIntent,
		IntentConfidence: s.IntentConfidence,
		InquiryDetails:   details,
		Stage:            s.Stage,
		MessageCount:     s.MessageCount,
		TaskID:           s.TaskID,
		EscalationReason: s.EscalationReason,
		AwaitingContact:  s.AwaitingContact,
		PreviousMessages: s.history.items(),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
