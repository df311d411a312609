package classify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Hours describes the local clock windows used for priority adjustment. A
// window whose start is after its end wraps midnight.
type Hours struct {
	AfterHoursStart    int
	AfterHoursEnd      int
	BusinessHoursStart int
	BusinessHoursEnd   int
}

func DefaultHours() Hours {
	return Hours{AfterHoursStart: 22, AfterHoursEnd: 6, BusinessHoursStart: 8, BusinessHoursEnd: 18}
}

func inWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (h Hours) afterHours(t time.Time) bool {
	return inWindow(t.Hour(), h.AfterHoursStart, h.AfterHoursEnd)
}

func (h Hours) businessHours(t time.Time) bool {
	return inWindow(t.Hour(), h.BusinessHoursStart, h.BusinessHoursEnd)
}

type Resolver struct {
	AI       *AIClassifier
	Fallback *Fallback
	Hours    Hours
	Location *time.Location
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Analyze classifies a problem, preferring the model and degrading to the
// keyword rules, then applies the clock and customer adjustments.
func (r *Resolver) Analyze(ctx context.Context, problemText string, snippet *ConversationSnippet, customer *CustomerInfo) ClassificationResult {
	return r.AnalyzeAt(ctx, problemText, snippet, customer, time.Time{})
}

// AnalyzeAt is Analyze with the clock adjustments evaluated at the time the
// request was submitted. A zero time means now.
func (r *Resolver) AnalyzeAt(ctx context.Context, problemText string, snippet *ConversationSnippet, customer *CustomerInfo, at time.Time) ClassificationResult {
	res := r.classify(ctx, problemText, snippet)
	return r.adjust(res, customer, r.localTime(at))
}

func (r *Resolver) classify(ctx context.Context, problemText string, snippet *ConversationSnippet) ClassificationResult {
	fallback := r.Fallback
	if fallback == nil {
		fallback = NewFallback(nil)
	}
	if !r.AI.Enabled() {
		return fallback.Classify(problemText)
	}
	res, err := r.AI.Classify(ctx, problemText, snippet)
	if err == nil {
		return res
	}

	var upstream *UpstreamError
	var parse *ParseError
	switch {
	case errors.As(err, &upstream):
		r.Logger.Warn().Err(err).Msg("ai classification unavailable, using rules")
	case errors.As(err, &parse):
		r.Logger.Warn().Err(err).Msg("ai classification unparseable, using rules")
	default:
		r.Logger.Warn().Err(err).Msg("ai classification failed, using rules")
	}
	fb := fallback.Classify(problemText)
	fb.Degraded = true
	fb.Reasoning += " (AI unavailable, rule-based fallback)"
	fb.Tags = appendTag(fb.Tags, TagDegraded)
	return fb
}

func (r *Resolver) localTime(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
		if r.Now != nil {
			t = r.Now()
		}
	}
	if r.Location != nil {
		t = t.In(r.Location)
	}
	return t
}

func (r *Resolver) adjust(res ClassificationResult, customer *CustomerInfo, t time.Time) ClassificationResult {
	before := res.Priority
	tags := append([]string{}, res.Tags...)

	commercial := customer != nil && customer.Commercial
	switch {
	case commercial && r.Hours.businessHours(t):
		if res.Priority != PriorityHigh {
			res.Priority = (res.Priority - 1).Clamp()
			res.Reasoning += "; commercial customer during business hours - raised one level"
		}
		tags = appendTag(tags, TagCommercial)
	case r.Hours.afterHours(t) && res.Priority != PriorityHigh:
		res.Priority = (res.Priority + 1).Clamp()
		res.Reasoning += "; after-hours request - lowered one level"
		tags = appendTag(tags, TagAfterHours)
	}

	if customer != nil && customer.PreviousInteractions >= 3 {
		tags = appendTag(tags, TagReturning)
	}

	res.Tags = tags
	res.UrgencyLevel = res.Priority.UrgencyLevel()
	if res.Priority != before || res.EstimatedResponseTime == "" {
		res.EstimatedResponseTime = res.Priority.ResponseTime()
	}
	return res
}
