package rag_service

import (
	"context"
	"log/slog"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

// RetryPolicy bounds the retries of embedding and index calls. The delay
// doubles after every failed attempt.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// withRetry retries fn while it fails with an embedding or index error.
func withRetry[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := policy.Delay
	attempts := policy.attempts()

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if !pipeline_type.IsBackendError(err) || attempt == attempts {
			return zero, err
		}

		logger.Warn("Backend call failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return zero, err
		case <-time.After(delay):
		}
		delay *= 2
	}
}
