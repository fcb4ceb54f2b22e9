package rag_service

import (
	"context"
	"errors"
	"testing"

	"github.com/serisow/claimdesk/pipeline_type"
)

func record(ns string, position int, vector []float32, text string) pipeline_type.VectorRecord {
	return pipeline_type.VectorRecord{
		ID:       ChunkID(ns, position),
		Vector:   vector,
		Text:     text,
		Metadata: pipeline_type.ChunkMetadata{Source: ns, Position: position},
	}
}

func TestMemoryIndexQueryOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	idx.Upsert(ctx, "a.pdf", []pipeline_type.VectorRecord{
		record("a.pdf", 0, []float32{0, 1}, "orthogonal"),
		record("a.pdf", 1, []float32{1, 0}, "exact, later"),
		record("a.pdf", 2, []float32{1, 1}, "diagonal"),
		record("a.pdf", 3, []float32{2, 0}, "exact, latest"),
	})

	passages, err := idx.Query(ctx, "a.pdf", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"exact, later", "exact, latest", "diagonal"}
	if len(passages) != len(want) {
		t.Fatalf("got %d passages, want %d", len(passages), len(want))
	}
	for i, p := range passages {
		if p.Text != want[i] {
			t.Errorf("passage %d = %q, want %q", i, p.Text, want[i])
		}
	}
}

func TestMemoryIndexNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	idx.Upsert(ctx, "a.pdf", []pipeline_type.VectorRecord{record("a.pdf", 0, []float32{1, 0}, "from a")})
	idx.Upsert(ctx, "b.pdf", []pipeline_type.VectorRecord{record("b.pdf", 0, []float32{1, 0}, "from b")})

	passages, _ := idx.Query(ctx, "b.pdf", []float32{1, 0}, 5)
	if len(passages) != 1 || passages[0].Text != "from b" {
		t.Errorf("query on b.pdf returned %+v", passages)
	}

	exists, _ := idx.Exists(ctx, "c.pdf")
	if exists {
		t.Error("unknown namespace reported as existing")
	}
	empty, _ := idx.Query(ctx, "c.pdf", []float32{1, 0}, 5)
	if len(empty) != 0 {
		t.Errorf("empty namespace returned %d passages", len(empty))
	}
}

func TestMemoryIndexUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	idx.Upsert(ctx, "a.pdf", []pipeline_type.VectorRecord{record("a.pdf", 0, []float32{1, 0}, "old")})
	idx.Upsert(ctx, "a.pdf", []pipeline_type.VectorRecord{record("a.pdf", 0, []float32{1, 0}, "new")})

	if n, _ := idx.Count(ctx, "a.pdf"); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	passages, _ := idx.Query(ctx, "a.pdf", []float32{1, 0}, 1)
	if passages[0].Text != "new" {
		t.Errorf("text = %q, want new", passages[0].Text)
	}
}

func TestMemoryIndexErrors(t *testing.T) {
	idx := NewMemoryIndex()
	if _, err := idx.Query(context.Background(), "a.pdf", []float32{1}, 0); err == nil {
		t.Error("k = 0 should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := idx.Upsert(ctx, "a.pdf", nil)
	var idxErr *pipeline_type.IndexError
	if !errors.As(err, &idxErr) {
		t.Errorf("Upsert() on cancelled context error = %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{0, 0}, []float32{1, 0}, 0},
		{[]float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := cosineSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
