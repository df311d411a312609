package ai

import (
	"context"
	"fmt"
	"time"
)

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

// Options shared by the HTTP generators.
type Options struct {
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func (o Options) timeout(ctx context.Context) time.Duration {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}
