package classify

import (
	"strings"

	"github.com/applifix/backend/internal/models"
)

// Priority is the canonical 1..3 scale; lower is more urgent.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

const (
	TagEmergency  = "emergency"
	TagDegraded   = "degraded"
	TagVulnerable = "vulnerable-occupant"
	TagBusiness   = "business-premises"
	TagSpoilage   = "spoilage-risk"
	TagAfterHours = "after-hours"
	TagCommercial = "commercial-priority"
	TagReturning  = "returning-customer"
)

func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// Clamp keeps p inside the 1..3 range.
func (p Priority) Clamp() Priority {
	if p < PriorityHigh {
		return PriorityHigh
	}
	if p > PriorityLow {
		return PriorityLow
	}
	return p
}

// UrgencyLevel is the one-to-one word form of the priority.
func (p Priority) UrgencyLevel() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

// ResponseTime is the SLA quoted to the customer for a priority.
func (p Priority) ResponseTime() string {
	switch p {
	case PriorityHigh:
		return "Within 2-4 hours"
	case PriorityLow:
		return "Within 2-3 business days"
	default:
		return "Within 24 hours"
	}
}

type ClassificationResult struct {
	Priority              Priority `json:"priority"`
	UrgencyLevel          string   `json:"urgency_level"`
	Reasoning             string   `json:"reasoning"`
	EstimatedResponseTime string   `json:"estimated_response_time"`
	Tags                  []string `json:"tags"`
	Category              string   `json:"category"`
	ServiceType           string   `json:"service_type"`
	Sentiment             string   `json:"sentiment"`
	Confidence            float64  `json:"confidence"`
	MatchedKeywords       []string `json:"matched_keywords,omitempty"`
	Source                string   `json:"source"`
	Degraded              bool     `json:"degraded,omitempty"`
}

// HasTag reports whether the result carries tag.
func (r ClassificationResult) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// StorePriority maps the 1..3 scale onto the task store vocabulary. Priority 1
// becomes "urgent" only when the emergency tier fired.
func (r ClassificationResult) StorePriority() string {
	switch r.Priority {
	case PriorityHigh:
		if r.HasTag(TagEmergency) {
			return models.TaskPriorityUrgent
		}
		return models.TaskPriorityHigh
	case PriorityLow:
		return models.TaskPriorityLow
	default:
		return models.TaskPriorityMedium
	}
}

// PriorityFromStore is the inverse of StorePriority; unknown values map to medium.
func PriorityFromStore(v string) Priority {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case models.TaskPriorityUrgent, models.TaskPriorityHigh:
		return PriorityHigh
	case models.TaskPriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// CustomerInfo is what the caller knows about the person reporting the problem.
type CustomerInfo struct {
	Name                 string `json:"name,omitempty"`
	Phone                string `json:"phone,omitempty"`
	Commercial           bool   `json:"commercial,omitempty"`
	PreviousInteractions int    `json:"previous_interactions,omitempty"`
}

// ConversationSnippet is the slice of chat state embedded in the AI prompt.
type ConversationSnippet struct {
	Intent   string            `json:"intent,omitempty"`
	Entities map[string]string `json:"entities,omitempty"`
	Recent   []string          `json:"recent,omitempty"`
}

func (s *ConversationSnippet) empty() bool {
	return s == nil || (s.Intent == "" && len(s.Entities) == 0 && len(s.Recent) == 0)
}

func appendTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
