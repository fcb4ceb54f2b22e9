package pipeline_type

import "time"

type Mode string

const (
	// ModeClaim runs parse, retrieve, decide and render.
	ModeClaim Mode = "claim"
	// ModeAnswer retrieves context and answers the question directly.
	ModeAnswer Mode = "answer"
)

// ParsedQuery maps every fact field of the schema to a value or nil.
type ParsedQuery map[string]interface{}

const (
	DecisionApproved = "Approved"
	DecisionRejected = "Rejected"
)

// Decision is the validated verdict for one question.
type Decision struct {
	Decision          string          `json:"decision"`
	Amount            float64         `json:"amount"`
	Justification     string          `json:"justification"`
	ReferencedClauses []ChunkMetadata `json:"referenced_clauses"`
}

// Answer is the outcome for one question of a run. Reply is always set,
// holding a sentinel text when the question could not be answered.
type Answer struct {
	Question    string      `json:"question"`
	Reply       string      `json:"reply"`
	ParsedQuery ParsedQuery `json:"parsed_query,omitempty"`
	Decision    *Decision   `json:"decision,omitempty"`
	Passages    []Passage   `json:"passages,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// RunRequest is a document reference plus an ordered list of questions.
type RunRequest struct {
	Document  string   `json:"documents"`
	Questions []string `json:"questions"`
	Mode      Mode     `json:"mode,omitempty"`
}

type RunResult struct {
	RunID       string          `json:"run_id"`
	Document    string          `json:"document"`
	Mode        Mode            `json:"mode"`
	Ingestion   *IngestResponse `json:"ingestion,omitempty"`
	Answers     []Answer        `json:"answers"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Replies returns the reply texts in question order.
func (r *RunResult) Replies() []string {
	replies := make([]string, len(r.Answers))
	for i, a := range r.Answers {
		replies[i] = a.Reply
	}
	return replies
}
