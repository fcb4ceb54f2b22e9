package plugin_registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/serisow/claimdesk/services/llm_service"
	"github.com/serisow/claimdesk/services/rag_service"
)

type LLMFactory func(cfg llm_service.ServiceConfig, logger *slog.Logger) llm_service.LLMService

type EmbedderFactory func(cfg rag_service.EmbedderConfig) rag_service.Embedder

// PluginRegistry maps provider names to the constructors of their clients.
type PluginRegistry struct {
    llmProviders      map[string]LLMFactory
    embedderProviders map[string]EmbedderFactory
}

func NewPluginRegistry() *PluginRegistry {
    return &PluginRegistry{
        llmProviders:      make(map[string]LLMFactory),
        embedderProviders: make(map[string]EmbedderFactory),
    }
}

// NewDefaultRegistry knows every built-in provider.
func NewDefaultRegistry() *PluginRegistry {
    pr := NewPluginRegistry()
    pr.RegisterLLMProvider("ollama", func(cfg llm_service.ServiceConfig, logger *slog.Logger) llm_service.LLMService {
        return llm_service.NewOllamaService(cfg, logger)
    })
    pr.RegisterLLMProvider("openai", func(cfg llm_service.ServiceConfig, logger *slog.Logger) llm_service.LLMService {
        return llm_service.NewOpenAIService(cfg, logger)
    })
    pr.RegisterLLMProvider("anthropic", func(cfg llm_service.ServiceConfig, logger *slog.Logger) llm_service.LLMService {
        return llm_service.NewAnthropicService(cfg, logger)
    })
    pr.RegisterEmbedderProvider("ollama", func(cfg rag_service.EmbedderConfig) rag_service.Embedder {
        return rag_service.NewOllamaEmbedder(cfg)
    })
    pr.RegisterEmbedderProvider("openai", func(cfg rag_service.EmbedderConfig) rag_service.Embedder {
        return rag_service.NewOpenAIEmbedder(cfg)
    })
    return pr
}

func (pr *PluginRegistry) RegisterLLMProvider(name string, factory LLMFactory) {
    pr.llmProviders[strings.ToLower(name)] = factory
}

// NewLLMService builds the service of the named provider.
func (pr *PluginRegistry) NewLLMService(name string, cfg llm_service.ServiceConfig, logger *slog.Logger) (llm_service.LLMService, error) {
    factory, ok := pr.llmProviders[strings.ToLower(name)]
    if !ok {
        return nil, fmt.Errorf("unknown LLM provider: %s (available: %s)", name, strings.Join(sortedKeys(pr.llmProviders), ", "))
    }
    return factory(cfg, logger), nil
}

func (pr *PluginRegistry) RegisterEmbedderProvider(name string, factory EmbedderFactory) {
    pr.embedderProviders[strings.ToLower(name)] = factory
}

func (pr *PluginRegistry) NewEmbedder(name string, cfg rag_service.EmbedderConfig) (rag_service.Embedder, error) {
    factory, ok := pr.embedderProviders[strings.ToLower(name)]
    if !ok {
        return nil, fmt.Errorf("unknown embedding provider: %s (available: %s)", name, strings.Join(sortedKeys(pr.embedderProviders), ", "))
    }
    return factory(cfg), nil
}

func sortedKeys[V any](m map[string]V) []string {
    keys := make([]string, 0, len(m))
    for k := range m {
        keys = append(keys, k)
    }
    slices.Sort(keys)
    return keys
}
