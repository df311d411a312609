package ai

import (
	"context"
	"encoding/json"

	"github.com/applifix/backend/internal/utils"
)

// MockGenerator answers with a deterministic classification derived from the
// prompt hash, wrapped in prose the way real models tend to reply.
type MockGenerator struct {
	ModelVersion string
}

func (m MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := utils.Hash64(prompt)

	priorities := []int{1, 2, 2, 3}
	categories := []string{"repair", "maintenance", "inquiry", "spare_parts"}
	sentiments := []string{"neutral", "negative", "frustrated", "positive"}

	priority := priorities[int(h%uint64(len(priorities)))]
	body := map[string]any{
		"priority":              priority,
		"urgencyLevel":          map[int]string{1: "high", 2: "medium", 3: "low"}[priority],
		"reasoning":             "mock analysis (" + m.ModelVersion + ")",
		"estimatedResponseTime": "",
		"category":              categories[int((h/7)%uint64(len(categories)))],
		"serviceType":           "general",
		"sentiment":             sentiments[int((h/13)%uint64(len(sentiments)))],
		"confidence":            60 + int(h%30),
		"tags":                  []string{"mock"},
	}
	b, _ := json.Marshal(body)
	return "Here is the analysis:\n" + string(b) + "\n", nil
}
