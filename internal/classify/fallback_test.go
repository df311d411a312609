package classify

import (
	"reflect"
	"strings"
	"testing"
)

func TestFallbackUrgentOnly(t *testing.T) {
	f := NewFallback(nil)
	res := f.Classify("There is smoke and sparking from the socket")
	if res.Priority != PriorityHigh || res.UrgencyLevel != "high" {
		t.Fatalf("expected priority 1/high, got %d/%s", res.Priority, res.UrgencyLevel)
	}
	if res.Reasoning != "Emergency situation detected: sparking, smoke" {
		t.Fatalf("unexpected reasoning: %q", res.Reasoning)
	}
	if !res.HasTag(TagEmergency) {
		t.Fatalf("expected emergency tag, got %v", res.Tags)
	}
}

func TestFallbackUrgentBeatsLow(t *testing.T) {
	f := NewFallback(nil)
	res := f.Classify("routine maintenance but there's a gas leak")
	if res.Priority != PriorityHigh {
		t.Fatalf("expected urgent tier to dominate, got %d (%s)", res.Priority, res.Reasoning)
	}
	if !strings.HasPrefix(res.Reasoning, "Emergency situation detected: gas leak") {
		t.Fatalf("unexpected reasoning: %q", res.Reasoning)
	}
}

func TestFallbackTiers(t *testing.T) {
	f := NewFallback(nil)
	cases := []struct {
		text string
		want Priority
	}{
		{"my fridge is not cooling", PriorityHigh},
		{"washing machine makes a loud noise", PriorityMedium},
		{"I want a quote for annual maintenance", PriorityLow},
	}
	for _, tc := range cases {
		if got := f.Classify(tc.text).Priority; got != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.text, tc.want, got)
		}
	}
}

func TestFallbackEmptyAndDefault(t *testing.T) {
	f := NewFallback(nil)
	res := f.Classify("")
	if res.Priority != PriorityMedium || res.Reasoning != "No clear indicators found" {
		t.Fatalf("unexpected default result: %+v", res)
	}
	res = f.ClassifyWithDefault("hello there", PriorityLow)
	if res.Priority != PriorityLow {
		t.Fatalf("expected caller default to be used, got %d", res.Priority)
	}
}

func TestFallbackContextBoost(t *testing.T) {
	f := NewFallback(nil)
	res := f.Classify("fridge making noise and the insulin is inside")
	if res.Priority != PriorityHigh {
		t.Fatalf("expected spoilage boost to high, got %d", res.Priority)
	}
	if !res.HasTag(TagSpoilage) || !strings.Contains(res.Reasoning, "escalated") {
		t.Fatalf("expected spoilage escalation, got %q %v", res.Reasoning, res.Tags)
	}
}

func TestFallbackBoostersNeedWholeWords(t *testing.T) {
	f := NewFallback(nil)
	cases := []struct {
		text string
		want Priority
	}{
		{"I am getting impatient, the fridge makes a noise", PriorityMedium},
		{"please do routine servicing at my workshop", PriorityLow},
		{"fridge makes a noise and my patient father is at home", PriorityHigh},
		{"routine servicing for the shop", PriorityHigh},
	}
	for _, tc := range cases {
		res := f.Classify(tc.text)
		if res.Priority != tc.want {
			t.Fatalf("%q: expected %d, got %d (%s)", tc.text, tc.want, res.Priority, res.Reasoning)
		}
	}
	if res := f.Classify("I am getting impatient"); res.HasTag(TagVulnerable) {
		t.Fatalf("impatient must not read as a vulnerable occupant: %v", res.Tags)
	}
}

func TestFallbackPure(t *testing.T) {
	f := NewFallback(nil)
	a := f.Classify("AC leaking water in the restaurant, customers complaining")
	b := f.Classify("AC leaking water in the restaurant, customers complaining")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical results:\n%+v\n%+v", a, b)
	}
}

func TestFallbackVulnerableScenario(t *testing.T) {
	f := NewFallback(nil)
	res := f.Classify("AC completely dead, elderly mother in house, very hot")
	if res.Priority != PriorityHigh {
		t.Fatalf("expected priority 1, got %d", res.Priority)
	}
	if !res.HasTag(TagEmergency) || !res.HasTag(TagVulnerable) {
		t.Fatalf("expected emergency and vulnerable tags, got %v", res.Tags)
	}
	if !strings.Contains(res.Reasoning, "Emergency") || !strings.Contains(res.Reasoning, "Vulnerable occupant") {
		t.Fatalf("reasoning must mention both signals: %q", res.Reasoning)
	}
	if res.ServiceType != "ac_repair" {
		t.Fatalf("expected ac_repair, got %s", res.ServiceType)
	}
	if res.StorePriority() != "urgent" {
		t.Fatalf("expected urgent store priority, got %s", res.StorePriority())
	}
}

func TestStorePriorityMapping(t *testing.T) {
	cases := []struct {
		res  ClassificationResult
		want string
	}{
		{ClassificationResult{Priority: PriorityHigh}, "high"},
		{ClassificationResult{Priority: PriorityHigh, Tags: []string{TagEmergency}}, "urgent"},
		{ClassificationResult{Priority: PriorityMedium}, "medium"},
		{ClassificationResult{Priority: PriorityLow}, "low"},
	}
	for _, tc := range cases {
		if got := tc.res.StorePriority(); got != tc.want {
			t.Fatalf("priority %d: expected %s, got %s", tc.res.Priority, tc.want, got)
		}
		if back := PriorityFromStore(tc.want); back != tc.res.Priority {
			t.Fatalf("reverse mapping of %s gave %d", tc.want, back)
		}
	}
}
