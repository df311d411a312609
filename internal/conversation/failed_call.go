package conversation

import (
	"regexp"
	"strings"

	"github.com/applifix/backend/internal/rules"
)

// FailedCallDetection describes signs that the customer could not get through
// on the phone.
type FailedCallDetection struct {
	HasIndicator      bool     `json:"has_indicator"`
	MatchedKeywords   []string `json:"matched_keywords"`
	SuggestedPriority string   `json:"suggested_priority"`
	ExtractedContext  *string  `json:"extracted_context,omitempty"`
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

func (r *Recognizer) DetectFailedCall(message string) FailedCallDetection {
	text := rules.Normalize(message)
	hits := rules.MatchAll(text, r.rules.FailedCall)
	out := FailedCallDetection{
		HasIndicator:      len(hits) > 0,
		MatchedKeywords:   hits,
		SuggestedPriority: "low",
	}
	if !out.HasIndicator {
		out.MatchedKeywords = []string{}
		return out
	}

	urgent := rules.ContainsAny(text, r.rules.Urgent) || rules.ContainsAny(text, r.rules.UrgencyWords)
	switch {
	case urgent || len(hits) >= 2:
		out.SuggestedPriority = "high"
	default:
		out.SuggestedPriority = "medium"
	}

	for _, sentence := range sentenceSplit.Split(message, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || rules.ContainsAny(rules.Normalize(sentence), r.rules.FailedCall) {
			continue
		}
		out.ExtractedContext = &sentence
		break
	}
	return out
}
