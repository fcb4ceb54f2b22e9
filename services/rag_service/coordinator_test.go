package rag_service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const samplePolicy = `Section 1. Hospitalisation expenses are covered up to the sum insured.

Section 2. Dental treatment, including orthodontic braces, is covered only for insured persons under 18 years of age.

Section 3. Knee surgery is covered after a waiting period of 24 months from the policy start date.

Section 4. Claims must be notified within 30 days of discharge.`

type coordinatorFixture struct {
	coordinator *Coordinator
	index       *MemoryIndex
	store       *MemoryIngestionStore
	fetches     *int32
}

func newCoordinatorFixture(t *testing.T, loader DocumentLoader, embedder Embedder) coordinatorFixture {
	t.Helper()
	chunker, err := NewChunker(120, 20)
	if err != nil {
		t.Fatal(err)
	}
	index := NewMemoryIndex()
	store := NewMemoryIngestionStore()
	var fetches int32
	counting := &MockLoader{FetchTextFunc: func(ctx context.Context, source string) (pipeline_type.Document, error) {
		atomic.AddInt32(&fetches, 1)
		return loader.FetchText(ctx, source)
	}}
	c := NewCoordinator(counting, chunker, embedder, index, store, CoordinatorConfig{
		Retry:   RetryPolicy{Attempts: 3, Delay: time.Millisecond},
		Timeout: 5 * time.Second,
	}, testLogger())
	return coordinatorFixture{coordinator: c, index: index, store: store, fetches: &fetches}
}

func policyLoader() *MockLoader {
	return &MockLoader{FetchTextFunc: func(ctx context.Context, source string) (pipeline_type.Document, error) {
		return TextDocument(source, samplePolicy), nil
	}}
}

func TestEnsureIndexedIsIdempotent(t *testing.T) {
	f := newCoordinatorFixture(t, policyLoader(), &MockEmbedder{})
	ctx := context.Background()
	source := "https://example.com/policy.pdf"

	first, err := f.coordinator.EnsureIndexed(ctx, source)
	if err != nil {
		t.Fatalf("EnsureIndexed() error = %v", err)
	}
	if first.Cached || first.Metadata.ChunkCount == 0 {
		t.Fatalf("first ingestion = %+v", first)
	}

	second, err := f.coordinator.EnsureIndexed(ctx, source)
	if err != nil {
		t.Fatalf("second EnsureIndexed() error = %v", err)
	}
	if !second.Cached {
		t.Error("second ingestion should be a cache hit")
	}

	count, _ := f.index.Count(ctx, source)
	if count != first.Metadata.ChunkCount || second.Metadata.ChunkCount != count {
		t.Errorf("chunk count = %d after re-ingest, want %d", count, first.Metadata.ChunkCount)
	}
	if f.store.Len() != 1 {
		t.Errorf("records = %d, want 1", f.store.Len())
	}
	if got := atomic.LoadInt32(f.fetches); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestEnsureIndexedConcurrentCallersShareOneIngestion(t *testing.T) {
	release := make(chan struct{})
	slow := &MockLoader{FetchTextFunc: func(ctx context.Context, source string) (pipeline_type.Document, error) {
		<-release
		return TextDocument(source, samplePolicy), nil
	}}
	f := newCoordinatorFixture(t, slow, &MockEmbedder{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coordinator.EnsureIndexed(context.Background(), "policy.pdf")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(f.fetches); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
	if f.store.Len() != 1 {
		t.Errorf("records = %d, want 1", f.store.Len())
	}
}

func TestEnsureIndexedFailuresLeaveNoRecord(t *testing.T) {
	tests := []struct {
		name     string
		loader   DocumentLoader
		embedder Embedder
		check    func(error) bool
	}{
		{
			name: "fetch failure",
			loader: &MockLoader{FetchTextFunc: func(ctx context.Context, source string) (pipeline_type.Document, error) {
				return pipeline_type.Document{}, &pipeline_type.FetchError{Source: source, Err: errors.New("404")}
			}},
			embedder: &MockEmbedder{},
			check: func(err error) bool {
				var fe *pipeline_type.FetchError
				return errors.As(err, &fe)
			},
		},
		{
			name:   "embedding failure",
			loader: policyLoader(),
			embedder: &MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
				if strings.Contains(text, "Knee") {
					return nil, &pipeline_type.EmbeddingError{Provider: "mock", Err: errors.New("unavailable")}
				}
				return BagOfWords(text, mockDimensions), nil
			}},
			check: func(err error) bool {
				var ee *pipeline_type.EmbeddingError
				return errors.As(err, &ee)
			},
		},
		{
			name: "empty document",
			loader: &MockLoader{FetchTextFunc: func(ctx context.Context, source string) (pipeline_type.Document, error) {
				return TextDocument(source, ""), nil
			}},
			embedder: &MockEmbedder{},
			check: func(err error) bool {
				return errors.Is(err, pipeline_type.ErrEmptyDocument)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t, tt.loader, tt.embedder)
			_, err := f.coordinator.EnsureIndexed(context.Background(), "policy.pdf")
			if !tt.check(err) {
				t.Fatalf("EnsureIndexed() error = %v", err)
			}
			if f.store.Len() != 0 {
				t.Errorf("a failed ingestion wrote a record")
			}
		})
	}
}

func TestEnsureIndexedRetriesTransientEmbeddingErrors(t *testing.T) {
	var calls int32
	flaky := &MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &pipeline_type.EmbeddingError{Provider: "mock", Err: errors.New("timeout")}
		}
		return BagOfWords(text, mockDimensions), nil
	}}
	f := newCoordinatorFixture(t, policyLoader(), flaky)

	if _, err := f.coordinator.EnsureIndexed(context.Background(), "policy.pdf"); err != nil {
		t.Fatalf("EnsureIndexed() error = %v", err)
	}
	if f.store.Len() != 1 {
		t.Error("expected the document to be recorded after a retried embedding")
	}
}

func TestEnsureIndexedRecoversAfterFailedAttempt(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	embedder := &MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		if fail.Load() && strings.Contains(text, "Claims") {
			return nil, errors.New("model crashed")
		}
		return BagOfWords(text, mockDimensions), nil
	}}
	f := newCoordinatorFixture(t, policyLoader(), embedder)
	ctx := context.Background()

	if _, err := f.coordinator.EnsureIndexed(ctx, "policy.pdf"); err == nil {
		t.Fatal("expected the first ingestion to fail")
	}

	fail.Store(false)
	resp, err := f.coordinator.EnsureIndexed(ctx, "policy.pdf")
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	count, _ := f.index.Count(ctx, "policy.pdf")
	if count != resp.Metadata.ChunkCount {
		t.Errorf("chunk count = %d, want %d", count, resp.Metadata.ChunkCount)
	}
}

func TestEnsureIndexedSwallowsDuplicateRecord(t *testing.T) {
	f := newCoordinatorFixture(t, policyLoader(), &MockEmbedder{})
	racing := &racingStore{MemoryIngestionStore: f.store}
	f.coordinator.store = racing

	if _, err := f.coordinator.EnsureIndexed(context.Background(), "policy.pdf"); err != nil {
		t.Fatalf("EnsureIndexed() error = %v", err)
	}
}

// racingStore reports the document as absent but already marked, as when
// another process wins the race.
type racingStore struct {
	*MemoryIngestionStore
}

func (s *racingStore) Has(ctx context.Context, identity string) (bool, error) { return false, nil }
func (s *racingStore) Mark(ctx context.Context, identity string) error {
	return pipeline_type.ErrDuplicateIngestion
}

// lateStore misses the first lookup, as when a finished flight records the
// document between a caller's check and its own flight.
type lateStore struct {
	*MemoryIngestionStore
	lookups atomic.Int32
}

func (s *lateStore) Has(ctx context.Context, identity string) (bool, error) {
	if s.lookups.Add(1) == 1 {
		return false, nil
	}
	return s.MemoryIngestionStore.Has(ctx, identity)
}

func TestEnsureIndexedRechecksRecordBeforeIngesting(t *testing.T) {
	f := newCoordinatorFixture(t, policyLoader(), &MockEmbedder{})
	if err := f.store.Mark(context.Background(), "policy.pdf"); err != nil {
		t.Fatal(err)
	}
	f.coordinator.store = &lateStore{MemoryIngestionStore: f.store}

	resp, err := f.coordinator.EnsureIndexed(context.Background(), "policy.pdf")
	if err != nil {
		t.Fatalf("EnsureIndexed() error = %v", err)
	}
	if !resp.Cached {
		t.Error("response should report the document as already indexed")
	}
	if n := atomic.LoadInt32(f.fetches); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}
}

func TestEnsureIndexedRejectsEmptyReference(t *testing.T) {
	f := newCoordinatorFixture(t, policyLoader(), &MockEmbedder{})
	_, err := f.coordinator.EnsureIndexed(context.Background(), "  ")
	var fe *pipeline_type.FetchError
	if !errors.As(err, &fe) {
		t.Errorf("error = %v, want *FetchError", err)
	}
}
