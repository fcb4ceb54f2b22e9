package llm_service

import (
    "context"
)

type MockLLMService struct {
    CallLLMFunc func(ctx context.Context, opts CallOptions, prompt string) (string, error)
}

func (m *MockLLMService) CallLLM(ctx context.Context, opts CallOptions, prompt string) (string, error) {
    if m.CallLLMFunc != nil {
        return m.CallLLMFunc(ctx, opts, prompt)
    }
    return "mock response", nil
}
