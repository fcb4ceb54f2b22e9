package llm_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CallOptions controls a single model call.
type CallOptions struct {
    // JSON asks the backend to constrain its output to a single JSON object.
    JSON        bool
    System      string
    Temperature float64
    MaxTokens   int
}

type LLMService interface {
    CallLLM(ctx context.Context, opts CallOptions, prompt string) (string, error)
}

// ServiceConfig is shared by the HTTP backed services.
type ServiceConfig struct {
    APIURL     string
    APIKey     string
    Model      string
    Timeout    time.Duration
    MaxTokens  int
    MaxRetries int
    RetryDelay time.Duration
}

func (c ServiceConfig) withDefaults(apiURL, model string) ServiceConfig {
    if c.APIURL == "" {
        c.APIURL = apiURL
    }
    if c.Model == "" {
        c.Model = model
    }
    if c.Timeout == 0 {
        c.Timeout = 120 * time.Second
    }
    if c.MaxTokens == 0 {
        c.MaxTokens = 1024
    }
    if c.MaxRetries == 0 {
        c.MaxRetries = 3
    }
    if c.RetryDelay == 0 {
        c.RetryDelay = 5 * time.Second
    }
    return c
}

// callWithRetry runs call until it succeeds, the attempts are exhausted, the
// context ends or the backend reports an exhausted quota.
func callWithRetry(ctx context.Context, logger *slog.Logger, provider string, cfg ServiceConfig, call func() (string, error)) (string, error) {
    for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
        response, err := call()
        if err == nil {
            return response, nil
        }

        var httpErr *LLMHttpError
        if errors.As(err, &httpErr) {
            if httpErr.StatusCode == http.StatusTooManyRequests {
                logger.Error("LLM API quota exceeded",
                    slog.String("provider", provider),
                    slog.String("error_type", httpErr.ErrorType),
                    slog.String("error_message", httpErr.Message),
                    slog.String("model", cfg.Model))
                return "", fmt.Errorf("%s quota exceeded: %w", provider, httpErr)
            }

            logger.Error("LLM API error",
                slog.String("provider", provider),
                slog.Int("attempt", attempt),
                slog.Int("status_code", httpErr.StatusCode),
                slog.String("error_type", httpErr.ErrorType),
                slog.String("error_message", httpErr.Message))
        }

        if ctx.Err() != nil {
            return "", ctx.Err()
        }

        if attempt == cfg.MaxRetries {
            logger.Error("Error calling LLM API after multiple attempts",
                slog.String("provider", provider),
                slog.Int("attempts", cfg.MaxRetries),
                slog.String("error", err.Error()),
                slog.String("model", cfg.Model))
            return "", fmt.Errorf("failed to call %s API after %d attempts: %w", provider, cfg.MaxRetries, err)
        }

        logger.Warn("Attempt failed, retrying",
            slog.String("provider", provider),
            slog.Int("attempt", attempt),
            slog.Duration("retry_delay", cfg.RetryDelay),
            slog.String("error", err.Error()))

        select {
        case <-ctx.Done():
            return "", ctx.Err()
        case <-time.After(cfg.RetryDelay):
        }
    }

    return "", fmt.Errorf("failed to call %s API after exhausting all retry attempts", provider)
}

func maxTokens(opts CallOptions, cfg ServiceConfig) int {
    if opts.MaxTokens > 0 {
        return opts.MaxTokens
    }
    return cfg.MaxTokens
}
