package rag_service

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "golang.org/x/time/rate"

    "github.com/serisow/claimdesk/pipeline_type"
)

// Embedder maps text to a vector of fixed length.
type Embedder interface {
    Embed(ctx context.Context, text string) ([]float32, error)
    Dimensions() int
    Name() string
}

type EmbedderConfig struct {
    APIURL     string
    APIKey     string
    Model      string
    Dimensions int
    // RateLimit is the number of requests per second; zero disables throttling.
    RateLimit float64
    Timeout   time.Duration
}

func newLimiter(rps float64) *rate.Limiter {
    if rps <= 0 {
        return rate.NewLimiter(rate.Inf, 0)
    }
    burst := int(rps)
    if burst < 1 {
        burst = 1
    }
    return rate.NewLimiter(rate.Limit(rps), burst)
}

func newEmbeddingClient(timeout time.Duration) *http.Client {
    if timeout == 0 {
        timeout = 60 * time.Second
    }
    return &http.Client{Timeout: timeout}
}

type EmbeddingRequest struct {
    Input string `json:"input"`
    Model string `json:"model"`
}

type EmbeddingResponse struct {
    Data []struct {
        Embedding []float32 `json:"embedding"`
    } `json:"data"`
    Usage struct {
        TotalTokens int `json:"total_tokens"`
    } `json:"usage"`
    Object string `json:"object"`
}

type OpenAIEmbedder struct {
    client  *http.Client
    limiter *rate.Limiter
    config  EmbedderConfig
}

func NewOpenAIEmbedder(config EmbedderConfig) *OpenAIEmbedder {
    if config.APIURL == "" {
        config.APIURL = "https://api.openai.com/v1/embeddings"
    }
    if config.Model == "" {
        config.Model = "text-embedding-3-small"
    }
    if config.Dimensions == 0 {
        config.Dimensions = 1536
    }
    return &OpenAIEmbedder{
        client:  newEmbeddingClient(config.Timeout),
        limiter: newLimiter(config.RateLimit),
        config:  config,
    }
}

func (e *OpenAIEmbedder) Name() string    { return "openai" }
func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
    vector, err := e.embed(ctx, text)
    if err != nil {
        return nil, &pipeline_type.EmbeddingError{Provider: e.Name(), Err: err}
    }
    return vector, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
    if e.config.APIKey == "" {
        return nil, fmt.Errorf("EMBEDDING_API_KEY not set")
    }
    if err := e.limiter.Wait(ctx); err != nil {
        return nil, err
    }

    jsonData, err := json.Marshal(EmbeddingRequest{Input: text, Model: e.config.Model})
    if err != nil {
        return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL, bytes.NewBuffer(jsonData))
    if err != nil {
        return nil, fmt.Errorf("failed to create HTTP request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

    resp, err := e.client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("failed to send HTTP request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        body, _ := io.ReadAll(resp.Body)
        return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
    }

    var embeddingResp EmbeddingResponse
    if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
        return nil, fmt.Errorf("failed to decode embedding response: %w", err)
    }
    if len(embeddingResp.Data) == 0 {
        return nil, fmt.Errorf("no embedding data received")
    }

    return checkDimensions(embeddingResp.Data[0].Embedding, e.config.Dimensions)
}

// OllamaEmbedder uses the /api/embeddings endpoint of a local Ollama server.
type OllamaEmbedder struct {
    client  *http.Client
    limiter *rate.Limiter
    config  EmbedderConfig
}

type ollamaEmbeddingRequest struct {
    Model  string `json:"model"`
    Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
    Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedder(config EmbedderConfig) *OllamaEmbedder {
    if config.APIURL == "" {
        config.APIURL = "http://localhost:11434"
    }
    config.APIURL = strings.TrimRight(config.APIURL, "/")
    if config.Model == "" {
        config.Model = "all-minilm"
    }
    if config.Dimensions == 0 {
        config.Dimensions = 384
    }
    return &OllamaEmbedder{
        client:  newEmbeddingClient(config.Timeout),
        limiter: newLimiter(config.RateLimit),
        config:  config,
    }
}

func (e *OllamaEmbedder) Name() string    { return "ollama" }
func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
    vector, err := e.embed(ctx, text)
    if err != nil {
        return nil, &pipeline_type.EmbeddingError{Provider: e.Name(), Err: err}
    }
    return vector, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
    if err := e.limiter.Wait(ctx); err != nil {
        return nil, err
    }

    jsonData, err := json.Marshal(ollamaEmbeddingRequest{Model: e.config.Model, Prompt: text})
    if err != nil {
        return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL+"/api/embeddings", bytes.NewBuffer(jsonData))
    if err != nil {
        return nil, fmt.Errorf("failed to create HTTP request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")

    resp, err := e.client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("failed to send HTTP request: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        body, _ := io.ReadAll(resp.Body)
        return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
    }

    var embeddingResp ollamaEmbeddingResponse
    if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
        return nil, fmt.Errorf("failed to decode embedding response: %w", err)
    }

    return checkDimensions(embeddingResp.Embedding, e.config.Dimensions)
}

func checkDimensions(vector []float32, want int) ([]float32, error) {
    if len(vector) == 0 {
        return nil, fmt.Errorf("no embedding data received")
    }
    if want > 0 && len(vector) != want {
        return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), want)
    }
    return vector, nil
}
