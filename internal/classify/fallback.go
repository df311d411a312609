package classify

import (
	"strings"

	"github.com/applifix/backend/internal/rules"
)

// Fallback is the deterministic keyword classifier. It never fails and holds no
// state besides the read-only rule tables.
type Fallback struct {
	rules *rules.KeywordRules
}

func NewFallback(r *rules.KeywordRules) *Fallback {
	if r == nil {
		r = rules.Default()
	}
	return &Fallback{rules: r}
}

type tier struct {
	keywords func(*rules.KeywordRules) []string
	priority Priority
	prefix   string
	tag      string
	category string
}

// Evaluated strictly in this order; the first tier with a hit wins.
var tiers = []tier{
	{func(r *rules.KeywordRules) []string { return r.Urgent }, PriorityHigh, "Emergency situation detected", TagEmergency, "emergency"},
	{func(r *rules.KeywordRules) []string { return r.High }, PriorityHigh, "High priority issue detected", "high-priority", "repair"},
	{func(r *rules.KeywordRules) []string { return r.Medium }, PriorityMedium, "Moderate issue detected", "standard", "repair"},
	{func(r *rules.KeywordRules) []string { return r.Low }, PriorityLow, "Routine request detected", "routine", "maintenance"},
}

type booster struct {
	keywords  func(*rules.KeywordRules) []string
	reason    string
	tag       string
	wholeWord bool
}

// Spoilage terms are stems ("spoil", "melting"), so only they match inside words.
var boosters = []booster{
	{func(r *rules.KeywordRules) []string { return r.Vulnerable }, "Vulnerable occupant present", TagVulnerable, true},
	{func(r *rules.KeywordRules) []string { return r.Business }, "Business premises affected", TagBusiness, true},
	{func(r *rules.KeywordRules) []string { return r.Spoilage }, "Food or medicine spoilage risk", TagSpoilage, false},
}

func (f *Fallback) Classify(problemText string) ClassificationResult {
	return f.ClassifyWithDefault(problemText, 0)
}

// ClassifyWithDefault uses def when no tier matches; an invalid def means medium.
func (f *Fallback) ClassifyWithDefault(problemText string, def Priority) ClassificationResult {
	text := rules.Normalize(problemText)
	words := rules.Words(problemText)

	res := ClassificationResult{Source: SourceFallback, Tags: []string{}}
	matched := false
	for _, t := range tiers {
		hits := rules.MatchAll(text, t.keywords(f.rules))
		if len(hits) == 0 {
			continue
		}
		res.Priority = t.priority
		res.Reasoning = t.prefix + ": " + strings.Join(hits, ", ")
		res.Tags = appendTag(res.Tags, t.tag)
		res.Category = t.category
		res.MatchedKeywords = hits
		res.Confidence = 70
		matched = true
		break
	}
	if !matched {
		if !def.Valid() {
			def = PriorityMedium
		}
		res.Priority = def
		res.Reasoning = "No clear indicators found"
		res.Tags = appendTag(res.Tags, "unclassified")
		res.Category = "inquiry"
		res.Confidence = 40
	}

	reasons := []string{res.Reasoning}
	for _, b := range boosters {
		var hits []string
		if b.wholeWord {
			hits = rules.MatchWords(words, b.keywords(f.rules))
		} else {
			hits = rules.MatchAll(text, b.keywords(f.rules))
		}
		if len(hits) == 0 {
			continue
		}
		reason := b.reason + " (" + strings.Join(hits, ", ") + ")"
		if res.Priority != PriorityHigh {
			res.Priority = PriorityHigh
			reason += " - escalated to high priority"
		}
		reasons = append(reasons, reason)
		res.Tags = appendTag(res.Tags, b.tag)
	}
	res.Reasoning = strings.Join(reasons, "; ")

	if st, ok := rules.FirstGroup(words, f.rules.ServiceTypes); ok {
		res.ServiceType = st
		if st == "spare_parts" || st == "installation" {
			if res.Category != "emergency" {
				res.Category = st
			}
		}
	} else {
		res.ServiceType = "general"
	}
	if s, ok := rules.FirstSubstringGroup(text, f.rules.Sentiments); ok {
		res.Sentiment = s
	} else {
		res.Sentiment = "neutral"
	}

	res.UrgencyLevel = res.Priority.UrgencyLevel()
	res.EstimatedResponseTime = res.Priority.ResponseTime()
	return res
}
