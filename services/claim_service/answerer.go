package claim_service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/llm_service"
)

// AnswerTopK is the number of passages given to a plain answer.
const AnswerTopK = 3

// Answerer answers a question directly from the retrieved context.
type Answerer struct {
	llm    llm_service.LLMService
	logger *slog.Logger
}

func NewAnswerer(llm llm_service.LLMService, logger *slog.Logger) *Answerer {
	return &Answerer{llm: llm, logger: logger}
}

func (a *Answerer) Answer(ctx context.Context, question string, passages []pipeline_type.Passage) (string, error) {
	reply, err := a.llm.CallLLM(ctx, llm_service.CallOptions{}, answerPrompt(question, passages))
	if err != nil {
		return "", fmt.Errorf("answer call failed: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &pipeline_type.MalformedOutputError{Stage: "answer", Reason: "empty reply"}
	}
	return reply, nil
}
