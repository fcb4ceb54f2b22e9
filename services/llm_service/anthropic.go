// anthropic.go

package llm_service

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "net/http"
)

const defaultAnthropicURL = "https://api.anthropic.com/v1/messages"

// Anthropic has no JSON output mode; constrained calls get an instruction
// appended to the system prompt and are validated by the caller like any other.
const anthropicJSONInstruction = "Respond with a single valid JSON object and nothing else."

type AnthropicService struct {
    httpClient *http.Client
    logger     *slog.Logger
    config     ServiceConfig
}

type anthropicRequest struct {
    Model       string              `json:"model"`
    System      string              `json:"system,omitempty"`
    Messages    []map[string]string `json:"messages"`
    MaxTokens   int                 `json:"max_tokens"`
    Temperature float64             `json:"temperature"`
}

type anthropicResponse struct {
    Content []struct {
        Type string `json:"type"`
        Text string `json:"text"`
    } `json:"content"`
}

func NewAnthropicService(config ServiceConfig, logger *slog.Logger) *AnthropicService {
    config = config.withDefaults(defaultAnthropicURL, "claude-3-5-haiku-latest")
    return &AnthropicService{
        httpClient: &http.Client{Timeout: config.Timeout},
        logger:     logger,
        config:     config,
    }
}

func (s *AnthropicService) CallLLM(ctx context.Context, opts CallOptions, prompt string) (string, error) {
    return callWithRetry(ctx, s.logger, "Anthropic", s.config, func() (string, error) {
        return s.callAnthropic(ctx, opts, prompt)
    })
}

func (s *AnthropicService) callAnthropic(ctx context.Context, opts CallOptions, prompt string) (string, error) {
    system := opts.System
    if opts.JSON {
        if system != "" {
            system += "\n"
        }
        system += anthropicJSONInstruction
    }

    requestBody, err := json.Marshal(anthropicRequest{
        Model:  s.config.Model,
        System: system,
        Messages: []map[string]string{
            {"role": "user", "content": prompt},
        },
        MaxTokens:   maxTokens(opts, s.config),
        Temperature: opts.Temperature,
    })
    if err != nil {
        return "", fmt.Errorf("error marshaling request body: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewBuffer(requestBody))
    if err != nil {
        return "", fmt.Errorf("error creating request: %w", err)
    }

    req.Header.Set("x-api-key", s.config.APIKey)
    req.Header.Set("anthropic-version", "2023-06-01")
    req.Header.Set("Content-Type", "application/json")

    resp, err := s.httpClient.Do(req)
    if err != nil {
        return "", fmt.Errorf("error making request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return "", newHttpError("Anthropic", resp)
    }

    var result anthropicResponse
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return "", fmt.Errorf("error decoding response: %w", err)
    }

    for _, block := range result.Content {
        if block.Type == "text" {
            return block.Text, nil
        }
    }

    return "", fmt.Errorf("text not found in Anthropic API response")
}
