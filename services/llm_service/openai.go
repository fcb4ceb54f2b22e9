package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

type OpenAIService struct {
    httpClient *http.Client
    logger     *slog.Logger
    config     ServiceConfig
}

type openAIRequest struct {
    Model          string              `json:"model"`
    Messages       []map[string]string `json:"messages"`
    Temperature    float64             `json:"temperature"`
    MaxTokens      int                 `json:"max_tokens,omitempty"`
    ResponseFormat map[string]string   `json:"response_format,omitempty"`
}

type openAIResponse struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
        } `json:"message"`
    } `json:"choices"`
}

func NewOpenAIService(config ServiceConfig, logger *slog.Logger) *OpenAIService {
    config = config.withDefaults(defaultOpenAIURL, "gpt-4o-mini")
    return &OpenAIService{
        httpClient: &http.Client{Timeout: config.Timeout},
        logger:     logger,
        config:     config,
    }
}

func (s *OpenAIService) CallLLM(ctx context.Context, opts CallOptions, prompt string) (string, error) {
    return callWithRetry(ctx, s.logger, "OpenAI", s.config, func() (string, error) {
        return s.callOpenAI(ctx, opts, prompt)
    })
}

func (s *OpenAIService) callOpenAI(ctx context.Context, opts CallOptions, prompt string) (string, error) {
    system := opts.System
    if system == "" {
        system = "You are a helpful assistant."
    }

    body := openAIRequest{
        Model: s.config.Model,
        Messages: []map[string]string{
            {"role": "system", "content": system},
            {"role": "user", "content": prompt},
        },
        Temperature: opts.Temperature,
        MaxTokens:   maxTokens(opts, s.config),
    }
    if opts.JSON {
        body.ResponseFormat = map[string]string{"type": "json_object"}
    }

    requestBody, err := json.Marshal(body)
    if err != nil {
        return "", fmt.Errorf("error marshaling request body: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewBuffer(requestBody))
    if err != nil {
        return "", fmt.Errorf("error creating request: %w", err)
    }

    req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
    req.Header.Set("Content-Type", "application/json")

    resp, err := s.httpClient.Do(req)
    if err != nil {
        return "", fmt.Errorf("error making request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return "", newHttpError("OpenAI", resp)
    }

    var result openAIResponse
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return "", fmt.Errorf("error decoding response: %w", err)
    }

    if len(result.Choices) == 0 {
        return "", fmt.Errorf("unexpected response format from OpenAI API")
    }

    return result.Choices[0].Message.Content, nil
}
