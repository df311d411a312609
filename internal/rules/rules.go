package rules

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Term maps a vocabulary match to the canonical value stored for it.
type Term struct {
	Match string `yaml:"match"`
	Value string `yaml:"value"`
}

// TermGroup is an ordered list of keywords that resolve to one label.
type TermGroup struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// KeywordRules holds every keyword table used by the rule-based matchers.
// A loaded instance is never mutated, so it is safe to share across requests.
type KeywordRules struct {
	Urgent []string `yaml:"urgent"`
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
	Low    []string `yaml:"low"`

	Vulnerable []string `yaml:"vulnerable"`
	Business   []string `yaml:"business"`
	Spoilage   []string `yaml:"spoilage"`

	FailedCall []string `yaml:"failed_call"`

	ServiceTypes []TermGroup `yaml:"service_types"`
	Sentiments   []TermGroup `yaml:"sentiments"`

	Appliances   []Term   `yaml:"appliances"`
	Brands       []string `yaml:"brands"`
	UrgencyWords []string `yaml:"urgency_words"`
	ServiceAreas []string `yaml:"service_areas"`

	// Ordinary words that read as a brand with one letter missing.
	BrandLookalikes []string `yaml:"brand_lookalikes"`
}

// Default returns the built-in tables.
func Default() *KeywordRules {
	return &KeywordRules{
		Urgent: []string{
			"gas leak", "gas smell", "smell of gas", "sparking", "sparks", "smoke", "fire",
			"burning", "electric shock", "short circuit", "flooding", "water everywhere",
			"explod", "completely dead", "totally dead", "emergency", "dangerous",
		},
		High: []string{
			"not cooling", "not heating", "not working", "stopped working", "won't start",
			"not turning on", "no power", "leak", "tripping", "error code", "urgent", "asap",
			"broken",
		},
		Medium: []string{
			"noise", "noisy", "sound", "vibrat", "weak cooling", "less cooling",
			"not cold enough", "intermittent", "sometimes", "slow", "frost", "ice build",
			"smell", "odor", "dripping",
		},
		Low: []string{
			"maintenance", "routine", "servicing", "service", "clean", "inspection",
			"check-up", "checkup", "quote", "price", "estimate", "install", "upgrade",
		},
		Vulnerable: []string{
			"elderly", "old mother", "old father", "senior citizen", "grandmother",
			"grandfather", "baby", "infant", "newborn", "toddler", "pregnant", "sick",
			"patient", "bedridden", "disabled",
		},
		Business: []string{
			"restaurant", "shop", "office", "clinic", "hospital", "hotel", "business",
			"commercial kitchen", "warehouse", "cafe", "pharmacy",
		},
		Spoilage: []string{
			"food spoil", "spoiling", "spoilt", "food going bad", "rotting", "medicine",
			"insulin", "vaccine", "frozen food", "melting",
		},
		FailedCall: []string{
			"tried calling", "tried to call", "called you", "called several times",
			"calling you", "no answer", "no one answered", "nobody answered",
			"didn't pick up", "did not pick up", "not picking", "couldn't reach",
			"could not reach", "unable to reach", "can't reach", "cannot reach",
			"call not connecting", "call didn't connect", "call dropped", "line busy",
			"line was busy", "missed call", "phone not answered", "no response on phone",
		},
		ServiceTypes: []TermGroup{
			{Label: "spare_parts", Keywords: []string{"part", "parts", "spare", "spares", "compressor", "pcb", "capacitor", "thermostat"}},
			{Label: "installation", Keywords: []string{"install", "installation", "fitting", "uninstall"}},
			{Label: "ac_repair", Keywords: []string{"ac", "air conditioner", "aircon", "split ac", "window ac"}},
			{Label: "refrigerator_repair", Keywords: []string{"fridge", "refrigerator", "freezer"}},
			{Label: "washing_machine_repair", Keywords: []string{"washing machine", "washer", "dryer"}},
			{Label: "microwave_repair", Keywords: []string{"microwave", "oven"}},
			{Label: "water_heater_repair", Keywords: []string{"water heater", "geyser", "boiler"}},
			{Label: "maintenance", Keywords: []string{"maintenance", "servicing", "service", "cleaning"}},
		},
		Sentiments: []TermGroup{
			{Label: "frustrated", Keywords: []string{"frustrat", "fed up", "again and again", "third time", "still not", "annoyed"}},
			{Label: "urgent", Keywords: []string{"urgent", "asap", "immediately", "right now"}},
			{Label: "negative", Keywords: []string{"angry", "upset", "terrible", "worst", "disappointed", "unhappy", "bad"}},
			{Label: "positive", Keywords: []string{"thank", "great", "appreciate", "happy", "excellent"}},
		},
		Appliances: []Term{
			{Match: "air conditioner", Value: "ac"},
			{Match: "aircon", Value: "ac"},
			{Match: "ac", Value: "ac"},
			{Match: "fridge", Value: "refrigerator"},
			{Match: "refrigerator", Value: "refrigerator"},
			{Match: "freezer", Value: "refrigerator"},
			{Match: "washing machine", Value: "washing_machine"},
			{Match: "washer", Value: "washing_machine"},
			{Match: "dryer", Value: "dryer"},
			{Match: "dishwasher", Value: "dishwasher"},
			{Match: "microwave", Value: "microwave"},
			{Match: "oven", Value: "oven"},
			{Match: "water heater", Value: "water_heater"},
			{Match: "geyser", Value: "water_heater"},
			{Match: "chimney", Value: "chimney"},
			{Match: "water purifier", Value: "water_purifier"},
		},
		Brands: []string{
			"samsung", "lg", "whirlpool", "daikin", "voltas", "carrier", "godrej", "haier",
			"bosch", "ifb", "panasonic", "hitachi", "blue star", "lloyd", "onida",
			"mitsubishi", "toshiba", "sharp", "electrolux", "siemens", "kelvinator",
		},
		UrgencyWords: []string{"urgent", "emergency", "asap", "immediately", "right now", "today"},
		ServiceAreas: []string{
			"andheri", "bandra", "borivali", "dadar", "goregaon", "malad", "powai",
			"thane", "vashi", "kurla", "chembur", "mulund",
		},
		BrandLookalikes: []string{"hair", "volts", "onda"},
	}
}

// Load reads a YAML rules file and overlays every non-empty table on top of
// the defaults. An empty path returns the defaults.
func Load(path string) (*KeywordRules, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var override KeywordRules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	base.merge(&override)
	return base, nil
}

func (r *KeywordRules) merge(o *KeywordRules) {
	overlay := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = normalizeAll(src)
		}
	}
	overlay(&r.Urgent, o.Urgent)
	overlay(&r.High, o.High)
	overlay(&r.Medium, o.Medium)
	overlay(&r.Low, o.Low)
	overlay(&r.Vulnerable, o.Vulnerable)
	overlay(&r.Business, o.Business)
	overlay(&r.Spoilage, o.Spoilage)
	overlay(&r.FailedCall, o.FailedCall)
	overlay(&r.Brands, o.Brands)
	overlay(&r.UrgencyWords, o.UrgencyWords)
	overlay(&r.ServiceAreas, o.ServiceAreas)
	overlay(&r.BrandLookalikes, o.BrandLookalikes)
	if len(o.ServiceTypes) > 0 {
		r.ServiceTypes = o.ServiceTypes
	}
	if len(o.Sentiments) > 0 {
		r.Sentiments = o.Sentiments
	}
	if len(o.Appliances) > 0 {
		r.Appliances = o.Appliances
	}
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = Normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var quoteReplacer = strings.NewReplacer("’", "'", "‘", "'", "“", "\"", "”", "\"")

// Normalize folds text into the form every matcher works on: NFKC, lower case,
// straight quotes and single spaces.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = quoteReplacer.Replace(strings.ToLower(text))
	return strings.Join(strings.Fields(text), " ")
}

// MatchAll returns the keywords found as substrings of normalized text, in
// table order.
func MatchAll(normalized string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if k != "" && strings.Contains(normalized, k) {
			out = append(out, k)
		}
	}
	return out
}

// ContainsAny reports whether any keyword is a substring of normalized text.
func ContainsAny(normalized string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}

// Words reduces text to space separated letter/digit runs, padded on both
// sides, so whole-word phrases can be matched with HasWord.
func Words(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, norm.NFKC.String(text))
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}

// HasWord reports whether phrase occurs in words (as built by Words) on word
// boundaries.
func HasWord(words, phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(words, " "+phrase+" ")
}

// MatchWords is MatchAll on word boundaries; words is built by Words.
func MatchWords(words string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if HasWord(words, k) {
			out = append(out, strings.TrimSpace(k))
		}
	}
	return out
}

// FirstGroup returns the label of the first group with a whole-word keyword hit.
func FirstGroup(words string, groups []TermGroup) (string, bool) {
	for _, g := range groups {
		for _, k := range g.Keywords {
			if HasWord(words, k) {
				return g.Label, true
			}
		}
	}
	return "", false
}

// FirstSubstringGroup is FirstGroup with substring matching on normalized text.
func FirstSubstringGroup(normalized string, groups []TermGroup) (string, bool) {
	for _, g := range groups {
		if ContainsAny(normalized, g.Keywords) {
			return g.Label, true
		}
	}
	return "", false
}
