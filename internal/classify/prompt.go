package classify

import (
	"sort"
	"strings"
)

const promptRules = `You are the dispatch assistant of an appliance repair and spare parts business.
Classify the customer's problem and assign a service priority.

HIGH PRIORITY (1) - respond within 2-4 hours:
- Safety hazards: gas leak, sparking, smoke, burning smell, electric shock, flooding
- Appliance completely dead in extreme weather
- Vulnerable occupants affected (elderly, infants, sick people)
- Food or medicine at risk of spoiling
- Business premises where the failure stops operations

MEDIUM PRIORITY (2) - respond within 24 hours:
- Appliance working but with reduced performance (weak cooling, slow heating)
- Unusual noises, vibration, intermittent faults
- Minor leaks or dripping without damage

LOW PRIORITY (3) - respond within 2-3 business days:
- Routine maintenance, cleaning, servicing
- Quotes, price enquiries, installation planning
- Cosmetic issues and upgrades

Respond with ONLY one JSON object using exactly these fields:
{
  "priority": 1 | 2 | 3,
  "urgencyLevel": "high" | "medium" | "low",
  "reasoning": "short explanation",
  "estimatedResponseTime": "human readable response window",
  "category": "emergency" | "repair" | "maintenance" | "installation" | "inquiry" | "spare_parts",
  "serviceType": "ac_repair" | "refrigerator_repair" | "washing_machine_repair" | "microwave_repair" | "water_heater_repair" | "installation" | "maintenance" | "spare_parts" | "general",
  "sentiment": "positive" | "neutral" | "negative" | "frustrated" | "urgent",
  "confidence": 0-100,
  "tags": ["short", "labels"]
}`

// BuildPrompt renders the classification prompt for one problem text.
func BuildPrompt(problemText string, snippet *ConversationSnippet) string {
	var sb strings.Builder
	sb.WriteString(promptRules)
	sb.WriteString("\n\nCUSTOMER PROBLEM:\n")
	sb.WriteString(strings.TrimSpace(problemText))
	sb.WriteString("\n")
	if !snippet.empty() {
		sb.WriteString("\nCONVERSATION CONTEXT:\n")
		if snippet.Intent != "" {
			sb.WriteString("Detected intent: " + snippet.Intent + "\n")
		}
		if len(snippet.Entities) > 0 {
			keys := make([]string, 0, len(snippet.Entities))
			for k := range snippet.Entities {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sb.WriteString("- " + k + ": " + snippet.Entities[k] + "\n")
			}
		}
		for _, line := range snippet.Recent {
			sb.WriteString("> " + line + "\n")
		}
	}
	return sb.String()
}
