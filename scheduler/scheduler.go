package scheduler

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/rag_service"
)

type Ingestor interface {
	EnsureIndexed(ctx context.Context, source string) (*pipeline_type.IngestResponse, error)
}

// Scheduler periodically ensures every supported document of a folder is indexed.
type Scheduler struct {
	sourceDir     string
	checkInterval time.Duration
	ingestor      Ingestor
	logger        *slog.Logger

	// Maintain runs after a scan that indexed at least one new document.
	Maintain func(ctx context.Context) error

	// Prevent the same document from being ingested by overlapping scans.
	runningDocuments sync.Map
}

// ScanReport counts the outcome of one scan.
type ScanReport struct {
	Found   int
	Indexed int
	Cached  int
	Skipped int
	Failed  int
}

func New(sourceDir string, checkInterval time.Duration, ingestor Ingestor, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sourceDir:     sourceDir,
		checkInterval: checkInterval,
		ingestor:      ingestor,
		logger:        logger,
	}
}

// Start scans immediately, then every check interval until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting document folder scheduler",
		slog.String("source_dir", s.sourceDir),
		slog.Duration("check_interval", s.checkInterval))

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Error scanning document folder", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Document folder scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce ingests every supported document found in the folder.
func (s *Scheduler) RunOnce(ctx context.Context) (ScanReport, error) {
	documents, err := Discover(s.sourceDir)
	if err != nil {
		return ScanReport{}, err
	}

	report := ScanReport{Found: len(documents)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, doc := range documents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := s.ingestDocument(ctx, doc)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeIndexed:
				report.Indexed++
			case outcomeCached:
				report.Cached++
			case outcomeSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
		}()
	}
	wg.Wait()

	s.logger.Info("Document folder scanned",
		slog.Int("found", report.Found),
		slog.Int("indexed", report.Indexed),
		slog.Int("cached", report.Cached),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))

	if report.Indexed > 0 && s.Maintain != nil {
		if err := s.Maintain(ctx); err != nil {
			s.logger.Error("Index maintenance failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeIndexed
	outcomeCached
	outcomeSkipped
)

func (s *Scheduler) ingestDocument(ctx context.Context, path string) outcome {
	if _, loaded := s.runningDocuments.LoadOrStore(path, struct{}{}); loaded {
		return outcomeSkipped
	}
	defer s.runningDocuments.Delete(path)

	resp, err := s.ingestor.EnsureIndexed(ctx, path)
	if err != nil {
		s.logger.Error("Error ingesting document",
			slog.String("document", path),
			slog.String("error", err.Error()))
		return outcomeFailed
	}
	if resp.Cached {
		return outcomeCached
	}
	return outcomeIndexed
}

// Discover returns the absolute paths of the supported documents under dir, sorted.
func Discover(dir string) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var documents []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !rag_service.SupportedDocument(d.Name()) {
			return nil
		}
		documents = append(documents, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(documents)
	return documents, nil
}
