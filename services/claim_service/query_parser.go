package claim_service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/davecgh/go-spew/spew"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/llm_service"
)

type QueryParser struct {
	llm    llm_service.LLMService
	schema *FactSchema
	logger *slog.Logger
}

func NewQueryParser(llm llm_service.LLMService, schema *FactSchema, logger *slog.Logger) *QueryParser {
	if schema == nil {
		schema = DefaultFactSchema()
	}
	return &QueryParser{llm: llm, schema: schema, logger: logger}
}

func (p *QueryParser) Schema() *FactSchema { return p.schema }

// Parse extracts the schema facts from question. A reply that is not a JSON
// object yields a *pipeline_type.MalformedOutputError.
func (p *QueryParser) Parse(ctx context.Context, question string) (pipeline_type.ParsedQuery, error) {
	raw, err := p.llm.CallLLM(ctx, llm_service.CallOptions{
		JSON:   true,
		System: parserSystemPrompt,
	}, parserPrompt(p.schema, question))
	if err != nil {
		return nil, fmt.Errorf("query parser call failed: %w", err)
	}

	parsed, err := p.schema.Validate(raw)
	if err != nil {
		p.logger.Warn("Query parser returned malformed output",
			slog.String("question", question),
			slog.String("raw", raw))
		return nil, err
	}

	if p.logger.Enabled(ctx, slog.LevelDebug) {
		p.logger.Debug("Parsed query", slog.String("facts", spew.Sdump(parsed)))
	}
	return parsed, nil
}
