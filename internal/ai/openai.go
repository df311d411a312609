package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// OpenAICompatGenerator talks to any /chat/completions endpoint.
type OpenAICompatGenerator struct {
	opts   Options
	client *http.Client
	cache  *responseCache
}

func NewOpenAICompat(opts Options) *OpenAICompatGenerator {
	return &OpenAICompatGenerator{
		opts:   opts,
		client: &http.Client{},
		cache:  newResponseCache(opts.CacheTTL),
	}
}

func (a *OpenAICompatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(a.opts.BaseURL) == "" {
		return "", fmt.Errorf("OPENAI_BASE_URL is not set")
	}
	if strings.TrimSpace(a.opts.Model) == "" {
		return "", fmt.Errorf("OPENAI_MODEL is not set")
	}
	if v, ok := a.cache.get(prompt); ok {
		return v, nil
	}

	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []msg   `json:"messages"`
	}{
		Model:       a.opts.Model,
		Temperature: 0.1,
		Messages:    []msg{{Role: "user", Content: prompt}},
	}

	b, _ := json.Marshal(payload)
	endpoint := strings.TrimRight(a.opts.BaseURL, "/") + "/chat/completions"

	ctx, cancel := context.WithTimeout(ctx, a.opts.timeout(ctx))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(a.opts.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+a.opts.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("assistant request timed out")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("assistant request timed out")
		}
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", RateLimitError{RetryAfter: extractRetryAfter(errBody)}
		}
		return "", fmt.Errorf("assistant http error: %s", resp.Status)
	}

	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("empty assistant response")
	}
	answer := res.Choices[0].Message.Content
	a.cache.set(prompt, answer)
	return answer, nil
}
