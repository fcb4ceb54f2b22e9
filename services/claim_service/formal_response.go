package claim_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/llm_service"
)

type FormalResponder struct {
	llm    llm_service.LLMService
	logger *slog.Logger
}

func NewFormalResponder(llm llm_service.LLMService, logger *slog.Logger) *FormalResponder {
	return &FormalResponder{llm: llm, logger: logger}
}

// Render turns a decision into a reply for the policyholder.
func (r *FormalResponder) Render(ctx context.Context, decision *pipeline_type.Decision) (string, error) {
	decisionJSON, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize decision: %w", err)
	}

	reply, err := r.llm.CallLLM(ctx, llm_service.CallOptions{
		System:      formalSystemPrompt,
		Temperature: 0.2,
	}, formalPrompt(string(decisionJSON)))
	if err != nil {
		return "", fmt.Errorf("formal response call failed: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &pipeline_type.MalformedOutputError{Stage: "render", Reason: "empty reply"}
	}
	return reply, nil
}

// PlainReply is the reply used when no formal reply could be generated.
func PlainReply(decision *pipeline_type.Decision) string {
	return fmt.Sprintf("Decision: %s. Amount: %s. Justification: %s",
		decision.Decision,
		strconv.FormatFloat(decision.Amount, 'f', -1, 64),
		decision.Justification)
}
