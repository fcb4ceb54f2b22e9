package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

type mockIngestor struct {
	mu       sync.Mutex
	indexed  map[string]bool
	calls    int
	ingestFn func(source string) error
}

func (m *mockIngestor) EnsureIndexed(ctx context.Context, source string) (*pipeline_type.IngestResponse, error) {
	m.mu.Lock()
	m.calls++
	if m.indexed[source] {
		m.mu.Unlock()
		return &pipeline_type.IngestResponse{Document: source, Cached: true}, nil
	}
	m.mu.Unlock()

	if m.ingestFn != nil {
		if err := m.ingestFn(source); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.indexed[source] = true
	m.mu.Unlock()
	return &pipeline_type.IngestResponse{Document: source}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.pdf", "a.docx", "notes.txt", "nested/c.doc", "nested/image.png")

	documents, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	var names []string
	for _, d := range documents {
		if !filepath.IsAbs(d) {
			t.Errorf("%s is not absolute", d)
		}
		rel, _ := filepath.Rel(dir, d)
		names = append(names, filepath.ToSlash(rel))
	}
	if got := strings.Join(names, ","); got != "a.docx,b.pdf,nested/c.doc" {
		t.Errorf("Discover() = %s", got)
	}

	if _, err := Discover(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing folder should fail")
	}
}

func TestRunOnce(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "policy-a.pdf", "policy-b.pdf", "broken.docx")

	ingestor := &mockIngestor{
		indexed: map[string]bool{},
		ingestFn: func(source string) error {
			if strings.HasSuffix(source, "broken.docx") {
				return &pipeline_type.FetchError{Source: source, Err: errors.New("corrupt")}
			}
			return nil
		},
	}
	var maintained atomic.Int32
	s := New(dir, time.Minute, ingestor, testLogger())
	s.Maintain = func(ctx context.Context) error {
		maintained.Add(1)
		return nil
	}

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	want := ScanReport{Found: 3, Indexed: 2, Failed: 1}
	if report != want {
		t.Errorf("first scan = %+v, want %+v", report, want)
	}

	report, _ = s.RunOnce(context.Background())
	want = ScanReport{Found: 3, Cached: 2, Failed: 1}
	if report != want {
		t.Errorf("second scan = %+v, want %+v", report, want)
	}
	if maintained.Load() != 1 {
		t.Errorf("maintenance ran %d times, want 1", maintained.Load())
	}
}

func TestOverlappingScansSkipRunningDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "slow.pdf")

	started := make(chan struct{})
	release := make(chan struct{})
	ingestor := &mockIngestor{
		indexed: map[string]bool{},
		ingestFn: func(source string) error {
			close(started)
			<-release
			return nil
		},
	}
	s := New(dir, time.Minute, ingestor, testLogger())

	done := make(chan ScanReport)
	go func() {
		report, _ := s.RunOnce(context.Background())
		done <- report
	}()
	<-started

	report, _ := s.RunOnce(context.Background())
	if report.Skipped != 1 {
		t.Errorf("overlapping scan = %+v, want the running document skipped", report)
	}

	close(release)
	if first := <-done; first.Indexed != 1 {
		t.Errorf("first scan = %+v", first)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "policy.pdf")
	ingestor := &mockIngestor{indexed: map[string]bool{}}
	s := New(dir, 10*time.Millisecond, ingestor, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after the context ended")
	}

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	if ingestor.calls < 2 {
		t.Errorf("calls = %d, want repeated scans", ingestor.calls)
	}
}
