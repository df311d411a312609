package conversation

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/applifix/backend/internal/rules"
)

const (
	IntentSpareParts   = "SPARE_PARTS_INQUIRY"
	IntentService      = "SERVICE_REQUEST"
	IntentSales        = "SALES_INQUIRY"
	IntentBusinessInfo = "BUSINESS_INFO"
	IntentEmergency    = "EMERGENCY"
	IntentGeneral      = "GENERAL"
)

const (
	EntityAppliance = "appliance_type"
	EntityBrand     = "brand"
	EntityUrgency   = "urgency"
	EntityLocation  = "location"
)

type Intent struct {
	Name       string            `json:"name"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

type intentPattern struct {
	name     string
	weight   int
	keywords []string
	patterns []*regexp.Regexp
}

// Evaluation order; on equal confidence the higher weight wins, then the
// earlier entry.
var intentTable = []intentPattern{
	{
		name:   IntentSpareParts,
		weight: 3,
		keywords: []string{
			"spare", "part", "compressor", "pcb", "capacitor", "thermostat", "motor",
			"filter", "remote", "in stock", "bulk order",
		},
		patterns: compile(
			`\b(need|want|looking for|buy|order|price of|cost of|do you have)\b.*\b(parts?|spares?|compressor|motor|pcb|capacitor|thermostat|filter|remote)\b`,
			`\b(spare|replacement)\s+parts?\b`,
			`\bpart\s*(no|number|#)\b`,
		),
	},
	{
		name:   IntentService,
		weight: 3,
		keywords: []string{
			"repair", "fix", "not working", "broken", "technician", "service", "not cooling",
			"leaking", "stopped", "problem", "issue", "check",
		},
		patterns: compile(
			`\b(ac|fridge|refrigerator|washing machine|washer|microwave|oven|geyser|water heater|dishwasher)\b.*\b(not|stopped|won't|isn't|doesn't|broken|leaking|noise|noisy)\b`,
			`\b(need|book|send|schedule)\b.*\b(technician|repair|service|mechanic)\b`,
			`\b(repair|fix)\s+(my|the|our)\b`,
		),
	},
	{
		name:   IntentSales,
		weight: 2,
		keywords: []string{
			"buy", "purchase", "new ac", "new fridge", "price", "cost", "offer", "discount",
			"quotation",
		},
		patterns: compile(
			`\b(buy|purchase)\s+(a|an|new)\b`,
			`\b(price|cost)\s+of\s+(a|an|new)\b`,
			`\b(any|current)\s+(offers?|discounts?)\b`,
		),
	},
	{
		name:   IntentBusinessInfo,
		weight: 1,
		keywords: []string{
			"timing", "hours", "open", "address", "where are you", "contact", "phone number",
			"working days", "sunday",
		},
		patterns: compile(
			`\b(what|when)\b.*\b(timings?|hours|open|close)\b`,
			`\bwhere\b.*\b(located|shop|office|store)\b`,
			`\b(are you|do you)\s+open\b`,
		),
	},
	{
		name:   IntentEmergency,
		weight: 4,
		keywords: []string{
			"emergency", "urgent", "gas leak", "sparking", "smoke", "fire", "burning",
			"shock", "flooding", "immediately",
		},
		patterns: compile(
			`\b(gas|burning)\s+(leak|smell)\b`,
			`\b(sparks?|sparking|smoke|fire)\b`,
			`\b(electric|electrical)\s+shock\b`,
		),
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Recognizer scores messages against the intent table and extracts entities.
// It is stateless and safe for concurrent use.
type Recognizer struct {
	rules *rules.KeywordRules
}

func NewRecognizer(r *rules.KeywordRules) *Recognizer {
	if r == nil {
		r = rules.Default()
	}
	return &Recognizer{rules: r}
}

func (r *Recognizer) Rules() *rules.KeywordRules {
	return r.rules
}

// Recognize returns the best scoring intent, or GENERAL when nothing scores.
func (r *Recognizer) Recognize(message string) Intent {
	text := rules.Normalize(message)
	best := Intent{Name: IntentGeneral, Confidence: 0}
	bestWeight := 0
	for _, ip := range intentTable {
		kwHits := len(rules.MatchAll(text, ip.keywords))
		patHits := 0
		for _, re := range ip.patterns {
			if re.MatchString(text) {
				patHits++
			}
		}
		score := (float64(kwHits)*0.5 + float64(patHits)*1.0) * float64(ip.weight)
		conf := math.Min(score/5, 1)
		if conf <= 0 {
			continue
		}
		if conf > best.Confidence || (conf == best.Confidence && ip.weight > bestWeight) {
			best = Intent{Name: ip.name, Confidence: conf}
			bestWeight = ip.weight
		}
	}
	best.Entities = r.ExtractEntities(message)
	return best
}

// ExtractEntities scans each vocabulary in table order; the first hit wins.
func (r *Recognizer) ExtractEntities(message string) map[string]string {
	words := rules.Words(message)
	out := map[string]string{}
	for _, a := range r.rules.Appliances {
		if rules.HasWord(words, a.Match) {
			out[EntityAppliance] = a.Value
			break
		}
	}
	for _, b := range r.rules.Brands {
		if rules.HasWord(words, b) {
			out[EntityBrand] = b
			break
		}
	}
	if _, ok := out[EntityBrand]; !ok {
		if b, ok := r.misspelledBrand(words); ok {
			out[EntityBrand] = b
		}
	}
	for _, u := range r.rules.UrgencyWords {
		if rules.HasWord(words, u) {
			out[EntityUrgency] = "urgent"
			break
		}
	}
	for _, loc := range r.rules.ServiceAreas {
		if rules.HasWord(words, loc) {
			out[EntityLocation] = loc
			break
		}
	}
	return out
}

// misspelledBrand catches brands typed with one letter missing ("samsng",
// "whirlpol"). The word must keep the brand's first letter and must not be a
// known lookalike such as "hair" for haier.
func (r *Recognizer) misspelledBrand(words string) (string, bool) {
	for _, w := range strings.Fields(words) {
		if len(w) < 4 || slices.Contains(r.rules.BrandLookalikes, w) {
			continue
		}
		for _, m := range fuzzy.Find(w, r.rules.Brands) {
			if m.Str[0] == w[0] && len(m.Str)-len(w) <= 1 {
				return m.Str, true
			}
		}
	}
	return "", false
}

var (
	phonePattern = regexp.MustCompile(`\+?\d[\d\s-]{8,}\d`)
	namePattern  = regexp.MustCompile(`(?i)\bmy name is\s+(\p{L}+)`)
)

// ExtractPhone returns the first run of at least ten digits, digits only.
func ExtractPhone(message string) string {
	for _, m := range phonePattern.FindAllString(message, -1) {
		digits := DigitsOnly(m)
		if len(digits) >= 10 {
			return digits
		}
	}
	return ""
}

func ExtractName(message string) string {
	m := namePattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return ""
	}
	name := []rune(strings.ToLower(m[1]))
	name[0] = unicode.ToUpper(name[0])
	return string(name)
}

func DigitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
