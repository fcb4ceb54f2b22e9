package llm_service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// apiError covers the OpenAI and Anthropic error envelopes.
type apiError struct {
    Error struct {
        Message string `json:"message"`
        Type    string `json:"type"`
        Code    string `json:"code"`
    } `json:"error"`
}

// ollamaError is Ollama's {"error": "..."} envelope.
type ollamaError struct {
    Error string `json:"error"`
}

type LLMHttpError struct {
    Provider   string
    StatusCode int
    Message    string
    ErrorType  string
    RawBody    string
}

func (e *LLMHttpError) Error() string {
    return fmt.Sprintf("%s API error (HTTP %d): %s (Type: %s)", e.Provider, e.StatusCode, e.Message, e.ErrorType)
}

// newHttpError reads the error body of a non-200 response.
func newHttpError(provider string, resp *http.Response) *LLMHttpError {
    httpErr := &LLMHttpError{
        Provider:   provider,
        StatusCode: resp.StatusCode,
        Message:    "Unknown error",
        ErrorType:  "unknown",
    }

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return httpErr
    }
    httpErr.RawBody = string(body)

    var structured apiError
    if err := json.Unmarshal(body, &structured); err == nil && structured.Error.Message != "" {
        httpErr.Message = structured.Error.Message
        httpErr.ErrorType = structured.Error.Type
        return httpErr
    }

    var plain ollamaError
    if err := json.Unmarshal(body, &plain); err == nil && plain.Error != "" {
        httpErr.Message = plain.Error
    }
    return httpErr
}
