package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaService talks to a local Ollama server through /api/chat.
type OllamaService struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     ServiceConfig
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func NewOllamaService(config ServiceConfig, logger *slog.Logger) *OllamaService {
	config = config.withDefaults(defaultOllamaURL, "llama3")
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	return &OllamaService{
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		config:     config,
	}
}

func (s *OllamaService) CallLLM(ctx context.Context, opts CallOptions, prompt string) (string, error) {
	return callWithRetry(ctx, s.logger, "Ollama", s.config, func() (string, error) {
		return s.callOllama(ctx, opts, prompt)
	})
}

func (s *OllamaService) callOllama(ctx context.Context, opts CallOptions, prompt string) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})

	body := ollamaChatRequest{
		Model:    s.config.Model,
		Messages: messages,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  maxTokens(opts, s.config),
		},
	}
	if opts.JSON {
		body.Format = "json"
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL+"/api/chat", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newHttpError("Ollama", resp)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	return result.Message.Content, nil
}
