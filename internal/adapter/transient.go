package adapter

import (
	"context"
	"strings"
	"time"
)

// transientPatterns are the provider failure signatures worth retrying:
// capacity and rate-limit responses, plus torn connections. Anything
// else retries would only repeat.
var transientPatterns = []string{
	"503",
	"429",
	"overload",
	"over capacity",
	"too many requests",
	"rate limit",
	"temporarily unavailable",
	"service unavailable",
	"connection reset",
	"connection refused",
}

// isTransient classifies an error message from a backend.
func isTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// backoff sleeps 2^attempt seconds, honoring context cancellation.
func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// firstLine trims an error message to its first non-empty line.
func firstLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
