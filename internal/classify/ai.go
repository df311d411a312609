package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/ai"
)

// ErrNotConfigured is returned when no model credential is available.
var ErrNotConfigured = errors.New("ai classifier is not configured")

// UpstreamError wraps any failure of the model call itself.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "ai upstream: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ParseError means the model answered but no usable JSON object was found.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "ai response parse: " + e.Reason
}

var (
	validCategories   = []string{"emergency", "repair", "maintenance", "installation", "inquiry", "spare_parts"}
	validServiceTypes = []string{"ac_repair", "refrigerator_repair", "washing_machine_repair", "microwave_repair", "water_heater_repair", "installation", "maintenance", "spare_parts", "general"}
	validSentiments   = []string{"positive", "neutral", "negative", "frustrated", "urgent"}
	validUrgency      = []string{"high", "medium", "low"}
)

type AIClassifier struct {
	gen    ai.Generator
	logger zerolog.Logger
}

// NewAIClassifier returns a classifier; a nil generator yields ErrNotConfigured
// on every call.
func NewAIClassifier(gen ai.Generator, logger zerolog.Logger) *AIClassifier {
	return &AIClassifier{gen: gen, logger: logger}
}

func (c *AIClassifier) Enabled() bool {
	return c != nil && c.gen != nil
}

func (c *AIClassifier) Classify(ctx context.Context, problemText string, snippet *ConversationSnippet) (ClassificationResult, error) {
	if !c.Enabled() {
		return ClassificationResult{}, ErrNotConfigured
	}
	raw, err := c.gen.Generate(ctx, BuildPrompt(problemText, snippet))
	if err != nil {
		return ClassificationResult{}, &UpstreamError{Err: err}
	}
	res, corrections, err := ParseAIResponse(raw)
	if err != nil {
		return ClassificationResult{}, err
	}
	if len(corrections) > 0 {
		c.logger.Warn().Strs("corrections", corrections).Msg("ai classification fields replaced with defaults")
	}
	return res, nil
}

// ExtractJSONObject returns the first balanced {...} block in raw, ignoring
// braces inside string literals.
func ExtractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(raw); i++ {
			ch := raw[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
		// unbalanced from this brace; try the next one
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// ParseAIResponse extracts and validates a classification from free model
// text. Invalid fields are replaced by safe defaults and reported in
// corrections; a missing or malformed object is a *ParseError.
func ParseAIResponse(raw string) (ClassificationResult, []string, error) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return ClassificationResult{}, nil, &ParseError{Reason: "no json object in response"}
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return ClassificationResult{}, nil, &ParseError{Reason: err.Error()}
	}

	var corrections []string
	res := ClassificationResult{Source: SourceAI}

	p, ok := coercePriority(fields["priority"])
	if !ok {
		corrections = append(corrections, fmt.Sprintf("priority=%v", fields["priority"]))
		p = PriorityMedium
	}
	res.Priority = p
	res.UrgencyLevel = p.UrgencyLevel()
	if u, _ := fields["urgencyLevel"].(string); u != "" && !oneOf(strings.ToLower(u), validUrgency) {
		corrections = append(corrections, "urgencyLevel="+u)
	} else if u != "" && strings.ToLower(u) != res.UrgencyLevel {
		corrections = append(corrections, "urgencyLevel="+u+" disagrees with priority")
	}

	res.Category = enumField(fields, "category", validCategories, "repair", &corrections)
	res.ServiceType = enumField(fields, "serviceType", validServiceTypes, "general", &corrections)
	res.Sentiment = enumField(fields, "sentiment", validSentiments, "neutral", &corrections)

	conf, ok := toFloat(fields["confidence"])
	if !ok {
		conf = 50
		if fields["confidence"] != nil {
			corrections = append(corrections, fmt.Sprintf("confidence=%v", fields["confidence"]))
		}
	}
	res.Confidence = math.Max(0, math.Min(100, conf))

	res.Reasoning, _ = fields["reasoning"].(string)
	res.Reasoning = strings.TrimSpace(res.Reasoning)
	if res.Reasoning == "" {
		res.Reasoning = "AI analysis"
	}
	res.EstimatedResponseTime, _ = fields["estimatedResponseTime"].(string)
	res.EstimatedResponseTime = strings.TrimSpace(res.EstimatedResponseTime)
	if res.EstimatedResponseTime == "" {
		res.EstimatedResponseTime = p.ResponseTime()
	}

	res.Tags = []string{}
	if list, ok := fields["tags"].([]any); ok {
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				res.Tags = appendTag(res.Tags, s)
			}
		}
	}
	if res.Category == "emergency" && p == PriorityHigh {
		res.Tags = appendTag(res.Tags, TagEmergency)
	}
	return res, corrections, nil
}

func coercePriority(v any) (Priority, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	p := Priority(int(f))
	if !p.Valid() {
		return 0, false
	}
	return p, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func enumField(fields map[string]any, key string, allowed []string, def string, corrections *[]string) string {
	raw, present := fields[key]
	s, _ := raw.(string)
	s = strings.ToLower(strings.TrimSpace(s))
	if oneOf(s, allowed) {
		return s
	}
	if present {
		*corrections = append(*corrections, fmt.Sprintf("%s=%v", key, raw))
	}
	return def
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
