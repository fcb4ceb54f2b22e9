package claim_service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/llm_service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateDecision(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantErr     bool
		wantAmount  float64
		wantVerdict string
	}{
		{name: "approved", raw: `{"decision": "Approved", "amount": 50000, "justification": "Clause 3 covers knee surgery."}`, wantAmount: 50000, wantVerdict: "Approved"},
		{name: "rejected zero", raw: `{"decision": "Rejected", "amount": 0, "justification": "Outside the age limit."}`, wantVerdict: "Rejected"},
		{name: "normalized case", raw: `{"decision": " approved ", "amount": 10, "justification": "ok"}`, wantAmount: 10, wantVerdict: "Approved"},
		{name: "currency string", raw: `{"decision": "Approved", "amount": "₹1,20,000", "justification": "ok"}`, wantAmount: 120000, wantVerdict: "Approved"},
		{name: "fenced object", raw: "```json\n{\"decision\": \"Rejected\", \"amount\": 0, \"justification\": \"no\"}\n```", wantVerdict: "Rejected"},
		{name: "prose around object", raw: `Here is the decision: {"decision": "Approved", "amount": 25, "justification": "ok"} Thanks.`, wantAmount: 25, wantVerdict: "Approved"},
		{name: "extra key", raw: `{"decision": "Rejected", "amount": 0, "justification": "no", "confidence": 0.4}`, wantErr: true},
		{name: "array of objects", raw: `[{"decision": "Approved", "amount": 1, "justification": "ok"}]`, wantErr: true},
		{name: "two objects", raw: `{"decision": "Approved", "amount": 1, "justification": "ok"} {"decision": "Rejected", "amount": 0, "justification": "no"}`, wantErr: true},
		{name: "unknown verdict", raw: `{"decision": "Pending", "amount": 0, "justification": "needs review"}`, wantErr: true},
		{name: "missing amount", raw: `{"decision": "Approved", "justification": "ok"}`, wantErr: true},
		{name: "null amount", raw: `{"decision": "Approved", "amount": null, "justification": "ok"}`, wantErr: true},
		{name: "non-numeric amount", raw: `{"decision": "Approved", "amount": "as per policy", "justification": "ok"}`, wantErr: true},
		{name: "negative amount", raw: `{"decision": "Approved", "amount": -5, "justification": "ok"}`, wantErr: true},
		{name: "boolean amount", raw: `{"decision": "Approved", "amount": true, "justification": "ok"}`, wantErr: true},
		{name: "empty justification", raw: `{"decision": "Approved", "amount": 1, "justification": "  "}`, wantErr: true},
		{name: "not json", raw: `Approved, 5000`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := ValidateDecision(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, pipeline_type.ErrMalformedModelOutput) {
					t.Fatalf("error = %v, want malformed output", err)
				}
				var malformed *pipeline_type.MalformedOutputError
				if errors.As(err, &malformed) && malformed.Raw != tt.raw {
					t.Error("malformed error lost the raw output")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateDecision() error = %v", err)
			}
			if decision.Decision != tt.wantVerdict || decision.Amount != tt.wantAmount {
				t.Errorf("decision = %+v", decision)
			}
		})
	}
}

func policyPassages() []pipeline_type.Passage {
	return []pipeline_type.Passage{
		{Text: "Dental treatment, including orthodontic braces, is covered only for insured persons under 18 years of age.", Metadata: pipeline_type.ChunkMetadata{Source: "policy.pdf", Position: 4, Page: 2}},
		{Text: "Family floater policies cover the policyholder, spouse and dependent children.", Metadata: pipeline_type.ChunkMetadata{Source: "policy.pdf", Position: 1, Page: 1}},
		{Text: "Claims must be notified within 30 days of discharge.", Metadata: pipeline_type.ChunkMetadata{Source: "policy.pdf", Position: 9, Page: 3}},
	}
}

func TestDecideDentalBracesOverAgeLimit(t *testing.T) {
	var prompt string
	llm := &llm_service.MockLLMService{CallLLMFunc: func(ctx context.Context, opts llm_service.CallOptions, p string) (string, error) {
		prompt = p
		if !opts.JSON {
			t.Error("decision call must request JSON output")
		}
		if strings.Contains(p, `"age":19`) && strings.Contains(p, "under 18 years") {
			return `{"decision": "Rejected", "amount": 0, "justification": "Braces are only covered for insured persons under 18; the patient is 19."}`, nil
		}
		return `{"decision": "Approved", "amount": 25000, "justification": "Covered."}`, nil
	}}
	engine := NewDecisionEngine(llm, testLogger())

	parsed := DefaultFactSchema().Empty()
	parsed["age"] = 19.0
	parsed["procedure"] = "dental braces"
	parsed["relationship"] = "son"
	parsed["policy_duration"] = "2 years"

	passages := policyPassages()
	decision, err := engine.Decide(context.Background(), parsed, passages)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.Decision != pipeline_type.DecisionRejected || decision.Amount != 0 {
		t.Errorf("decision = %+v, want Rejected with amount 0", decision)
	}

	if len(decision.ReferencedClauses) != len(passages) {
		t.Fatalf("referenced clauses = %d, want %d", len(decision.ReferencedClauses), len(passages))
	}
	for i, clause := range decision.ReferencedClauses {
		if clause != passages[i].Metadata {
			t.Errorf("clause %d = %+v, want %+v", i, clause, passages[i].Metadata)
		}
	}
	if strings.Count(prompt, PassageDelimiter) != len(passages)-1 {
		t.Errorf("prompt does not separate the passages with the delimiter")
	}
}

func TestDecideMalformedAndBackendErrors(t *testing.T) {
	backendErr := errors.New("connection refused")
	tests := []struct {
		name  string
		reply string
		err   error
		check func(error) bool
	}{
		{"malformed", `{"decision": "Maybe"}`, nil, func(err error) bool { return errors.Is(err, pipeline_type.ErrMalformedModelOutput) }},
		{"backend", "", backendErr, func(err error) bool { return errors.Is(err, backendErr) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &llm_service.MockLLMService{CallLLMFunc: func(ctx context.Context, opts llm_service.CallOptions, p string) (string, error) {
				return tt.reply, tt.err
			}}
			_, err := NewDecisionEngine(llm, testLogger()).Decide(context.Background(), DefaultFactSchema().Empty(), policyPassages())
			if !tt.check(err) {
				t.Errorf("Decide() error = %v", err)
			}
		})
	}
}
