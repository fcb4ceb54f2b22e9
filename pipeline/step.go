package pipeline

import (
	"context"
	"log/slog"

	"github.com/serisow/claimdesk/pipeline_type"
)

type Step interface {
	Execute(ctx context.Context, qc *Context) error
	GetType() string
}

// Collaborators of the steps.

type QueryParser interface {
	Parse(ctx context.Context, question string) (pipeline_type.ParsedQuery, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, namespace, query string, k int) ([]pipeline_type.Passage, error)
}

type DecisionMaker interface {
	Decide(ctx context.Context, parsed pipeline_type.ParsedQuery, passages []pipeline_type.Passage) (*pipeline_type.Decision, error)
}

type Renderer interface {
	Render(ctx context.Context, decision *pipeline_type.Decision) (string, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, passages []pipeline_type.Passage) (string, error)
}

type ParseStep struct {
	Parser QueryParser
}

func (s *ParseStep) GetType() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, qc *Context) error {
	parsed, err := s.Parser.Parse(ctx, qc.Question)
	if err != nil {
		return err
	}
	qc.Parsed = parsed
	return nil
}

// RetrieveStep finishes the question as undetermined when nothing is retrieved.
type RetrieveStep struct {
	Retriever Retriever
	TopK      int
	Logger    *slog.Logger
}

func (s *RetrieveStep) GetType() string { return "retrieve" }

func (s *RetrieveStep) Execute(ctx context.Context, qc *Context) error {
	passages, err := s.Retriever.Retrieve(ctx, qc.Namespace, qc.Question, s.TopK)
	if err != nil {
		return err
	}
	qc.Passages = passages
	if len(passages) == 0 {
		s.Logger.Warn("No passages retrieved",
			slog.String("namespace", qc.Namespace),
			slog.String("question", qc.Question))
		qc.Finish(pipeline_type.ReplyUndetermined)
	}
	return nil
}

type DecideStep struct {
	Engine DecisionMaker
}

func (s *DecideStep) GetType() string { return "decide" }

func (s *DecideStep) Execute(ctx context.Context, qc *Context) error {
	decision, err := s.Engine.Decide(ctx, qc.Parsed, qc.Passages)
	if err != nil {
		return err
	}
	qc.Decision = decision
	return nil
}

type RenderStep struct {
	Renderer Renderer
}

func (s *RenderStep) GetType() string { return "render" }

func (s *RenderStep) Execute(ctx context.Context, qc *Context) error {
	reply, err := s.Renderer.Render(ctx, qc.Decision)
	if err != nil {
		return err
	}
	qc.Finish(reply)
	return nil
}

type AnswerStep struct {
	Answerer Answerer
}

func (s *AnswerStep) GetType() string { return "answer" }

func (s *AnswerStep) Execute(ctx context.Context, qc *Context) error {
	reply, err := s.Answerer.Answer(ctx, qc.Question, qc.Passages)
	if err != nil {
		return err
	}
	qc.Finish(reply)
	return nil
}
