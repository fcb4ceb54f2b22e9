package claim_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/llm_service"
)

type DecisionEngine struct {
	llm    llm_service.LLMService
	logger *slog.Logger
}

func NewDecisionEngine(llm llm_service.LLMService, logger *slog.Logger) *DecisionEngine {
	return &DecisionEngine{llm: llm, logger: logger}
}

// Decide evaluates the facts against the passages. The returned decision
// references every passage, in the order given.
func (e *DecisionEngine) Decide(ctx context.Context, parsed pipeline_type.ParsedQuery, passages []pipeline_type.Passage) (*pipeline_type.Decision, error) {
	facts, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize parsed query: %w", err)
	}

	raw, err := e.llm.CallLLM(ctx, llm_service.CallOptions{
		JSON:   true,
		System: decisionSystemPrompt,
	}, decisionPrompt(string(facts), passages))
	if err != nil {
		return nil, fmt.Errorf("decision call failed: %w", err)
	}

	decision, err := ValidateDecision(raw)
	if err != nil {
		e.logger.Warn("Decision engine returned malformed output",
			slog.String("error", err.Error()),
			slog.String("raw", raw))
		return nil, err
	}

	decision.ReferencedClauses = make([]pipeline_type.ChunkMetadata, len(passages))
	for i, p := range passages {
		decision.ReferencedClauses[i] = p.Metadata
	}
	return decision, nil
}

// ValidateDecision checks that raw is an object with exactly the decision,
// amount and justification keys.
func ValidateDecision(raw string) (*pipeline_type.Decision, error) {
	malformed := func(format string, args ...interface{}) error {
		return &pipeline_type.MalformedOutputError{Stage: "decide", Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	object, err := decodeObject(raw)
	if err != nil {
		return nil, malformed("%v", err)
	}

	for key := range object {
		switch key {
		case "decision", "amount", "justification":
		default:
			return nil, malformed("unexpected key %q", key)
		}
	}

	verdict, _ := object["decision"].(string)
	switch strings.ToLower(strings.TrimSpace(verdict)) {
	case "approved":
		verdict = pipeline_type.DecisionApproved
	case "rejected":
		verdict = pipeline_type.DecisionRejected
	default:
		return nil, malformed("decision must be %q or %q, got %v", pipeline_type.DecisionApproved, pipeline_type.DecisionRejected, object["decision"])
	}

	value, ok := object["amount"]
	if !ok || value == nil {
		return nil, malformed("amount is missing")
	}
	amount, err := parseAmount(value)
	if err != nil {
		return nil, malformed("amount %v: %v", value, err)
	}

	justification, _ := object["justification"].(string)
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return nil, malformed("justification is missing or empty")
	}

	return &pipeline_type.Decision{
		Decision:      verdict,
		Amount:        amount,
		Justification: justification,
	}, nil
}

var currencyPrefixes = []string{"INR", "USD", "EUR", "Rs.", "Rs", "₹", "$", "€", "£"}

func parseAmount(value interface{}) (float64, error) {
	var amount float64
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		amount = f
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		for _, prefix := range currencyPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
				break
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		amount = f
	default:
		return 0, fmt.Errorf("not a number")
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	if amount < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return amount, nil
}
