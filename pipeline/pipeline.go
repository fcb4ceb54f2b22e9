package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/claim_service"
)

var (
	ErrNoQuestions = errors.New("at least one question is required")
	ErrUnknownMode = errors.New("unknown mode")
)

type Ingestor interface {
	EnsureIndexed(ctx context.Context, source string) (*pipeline_type.IngestResponse, error)
}

// Services are the collaborators a Runner composes.
type Services struct {
	Ingestor  Ingestor
	Retriever Retriever
	Parser    QueryParser
	Engine    DecisionMaker
	Renderer  Renderer
	Answerer  Answerer
}

type RunnerConfig struct {
	TopK        int
	Concurrency int
	DefaultMode pipeline_type.Mode
}

// Runner answers batches of questions about one document.
type Runner struct {
	services Services
	config   RunnerConfig
	store    *ExecutionStore
	logger   *slog.Logger
}

func NewRunner(services Services, config RunnerConfig, store *ExecutionStore, logger *slog.Logger) *Runner {
	if config.TopK < 1 {
		config.TopK = 5
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.DefaultMode == "" {
		config.DefaultMode = pipeline_type.ModeClaim
	}
	return &Runner{
		services: services,
		config:   config,
		store:    store,
		logger:   logger,
	}
}

// Steps returns the steps run for each question in mode.
func (r *Runner) Steps(mode pipeline_type.Mode) ([]Step, error) {
	switch mode {
	case pipeline_type.ModeClaim:
		return []Step{
			&ParseStep{Parser: r.services.Parser},
			&RetrieveStep{Retriever: r.services.Retriever, TopK: r.config.TopK, Logger: r.logger},
			&DecideStep{Engine: r.services.Engine},
			&RenderStep{Renderer: r.services.Renderer},
		}, nil
	case pipeline_type.ModeAnswer:
		return []Step{
			&RetrieveStep{Retriever: r.services.Retriever, TopK: claim_service.AnswerTopK, Logger: r.logger},
			&AnswerStep{Answerer: r.services.Answerer},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Run indexes the document if needed and answers every question. Document
// failures fail the whole run; question failures only affect their own
// answer. Answers are in question order.
func (r *Runner) Run(ctx context.Context, req pipeline_type.RunRequest) (*pipeline_type.RunResult, error) {
	req.Document = strings.TrimSpace(req.Document)
	if req.Document == "" {
		return nil, &pipeline_type.FetchError{Source: req.Document, Err: errors.New("empty document reference")}
	}
	if len(req.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	mode := req.Mode
	if mode == "" {
		mode = r.config.DefaultMode
	}
	steps, err := r.Steps(mode)
	if err != nil {
		return nil, err
	}

	result := &pipeline_type.RunResult{
		RunID:     uuid.NewString(),
		Document:  req.Document,
		Mode:      mode,
		StartedAt: r.now(),
	}
	if r.store != nil {
		r.store.Start(result.RunID, req, mode)
	}

	r.logger.Info("Run started",
		slog.String("run_id", result.RunID),
		slog.String("document", req.Document),
		slog.String("mode", string(mode)),
		slog.Int("question_count", len(req.Questions)))

	ingestion, err := r.services.Ingestor.EnsureIndexed(ctx, req.Document)
	if err != nil {
		r.fail(result.RunID, err)
		return nil, err
	}
	result.Ingestion = ingestion

	answers, err := r.answerAll(ctx, result.RunID, steps, req)
	if err != nil {
		r.fail(result.RunID, err)
		return nil, err
	}

	result.Answers = answers
	result.CompletedAt = r.now()
	if r.store != nil {
		r.store.Complete(result.RunID, result)
	}

	r.logger.Info("Run completed",
		slog.String("run_id", result.RunID),
		slog.Duration("duration", result.CompletedAt.Sub(result.StartedAt)))
	return result, nil
}

// answerAll answers every question in its own slot. When ctx reaches its
// deadline the finished answers are kept and the unfinished questions get
// the unavailable sentinel. A cancelled ctx fails the run.
func (r *Runner) answerAll(ctx context.Context, runID string, steps []Step, req pipeline_type.RunRequest) ([]pipeline_type.Answer, error) {
	var mu sync.Mutex
	answers := make([]pipeline_type.Answer, len(req.Questions))
	finished := make([]bool, len(req.Questions))

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(r.config.Concurrency)
		for i, question := range req.Questions {
			g.Go(func() error {
				answer := r.answer(ctx, steps, req.Document, question)
				r.audit(runID, answer)

				mu.Lock()
				defer mu.Unlock()
				answers[i] = answer
				finished[i] = true
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	err := ctx.Err()
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]pipeline_type.Answer, len(answers))
	copy(out, answers)
	for i, question := range req.Questions {
		if finished[i] {
			continue
		}
		r.logger.Warn("Question unfinished at the request deadline",
			slog.String("run_id", runID),
			slog.String("question", question))
		out[i] = pipeline_type.Answer{
			Question: question,
			Reply:    pipeline_type.ReplyUnavailable,
			Error:    err.Error(),
		}
	}
	return out, nil
}

// answer runs the steps for one question and never fails: errors become a
// sentinel reply.
func (r *Runner) answer(ctx context.Context, steps []Step, namespace, question string) pipeline_type.Answer {
	qc := NewContext(question, namespace)

	for _, step := range steps {
		err := r.execute(ctx, step, qc)
		if err == nil {
			if qc.Done {
				break
			}
			continue
		}

		if step.GetType() == "render" && qc.Decision != nil && ctx.Err() == nil {
			r.logger.Warn("Formal reply unavailable, using plain reply",
				slog.String("question", question),
				slog.String("error", err.Error()))
			qc.Finish(claim_service.PlainReply(qc.Decision))
			break
		}

		r.logger.Error("Question failed",
			slog.String("question", question),
			slog.String("step", step.GetType()),
			slog.String("error", err.Error()))
		answer := qc.Answer()
		answer.Reply = pipeline_type.ReplyUnavailable
		answer.Error = err.Error()
		return answer
	}

	if !qc.Done {
		answer := qc.Answer()
		answer.Reply = pipeline_type.ReplyUnavailable
		answer.Error = pipeline_type.ErrAnswerUnavailable.Error()
		return answer
	}
	return qc.Answer()
}

// execute runs a step, retrying once with the same input when the model
// output was malformed.
func (r *Runner) execute(ctx context.Context, step Step, qc *Context) error {
	err := step.Execute(ctx, qc)
	if err != nil && errors.Is(err, pipeline_type.ErrMalformedModelOutput) && ctx.Err() == nil {
		r.logger.Warn("Malformed model output, retrying step",
			slog.String("step", step.GetType()),
			slog.String("error", err.Error()))
		err = step.Execute(ctx, qc)
	}
	return err
}

func (r *Runner) audit(runID string, answer pipeline_type.Answer) {
	attrs := []any{
		slog.String("run_id", runID),
		slog.String("question", answer.Question),
		slog.Int("passage_count", len(answer.Passages)),
	}
	if answer.Decision != nil {
		attrs = append(attrs,
			slog.String("decision", answer.Decision.Decision),
			slog.Float64("amount", answer.Decision.Amount))
	}
	if answer.Error != "" {
		attrs = append(attrs, slog.String("error", answer.Error))
	}
	r.logger.Info("Question answered", attrs...)
}

func (r *Runner) fail(runID string, err error) {
	r.logger.Error("Run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()))
	if r.store != nil {
		r.store.Fail(runID, err)
	}
}

func (r *Runner) now() time.Time {
	if r.store != nil {
		return r.store.timeProvider.Now()
	}
	return time.Now()
}
