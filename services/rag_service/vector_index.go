package rag_service

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/serisow/claimdesk/pipeline_type"
)

// VectorIndex stores chunk vectors per namespace. A query never sees records
// of another namespace.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, records []pipeline_type.VectorRecord) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]pipeline_type.Passage, error)
	Exists(ctx context.Context, namespace string) (bool, error)
	Count(ctx context.Context, namespace string) (int, error)
}

type PgVectorIndex struct {
	db *pgxpool.Pool
}

func NewPgVectorIndex(db *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func (idx *PgVectorIndex) Upsert(ctx context.Context, namespace string, records []pipeline_type.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return &pipeline_type.IndexError{Op: "upsert", Namespace: namespace, Err: err}
		}
		batch.Queue(`
			INSERT INTO document_chunks (id, namespace, position, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			r.ID, namespace, r.Metadata.Position, r.Text, metadata, pgvector.NewVector(r.Vector))
	}

	if err := idx.db.SendBatch(ctx, batch).Close(); err != nil {
		return &pipeline_type.IndexError{Op: "upsert", Namespace: namespace, Err: err}
	}
	return nil
}

func (idx *PgVectorIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]pipeline_type.Passage, error) {
	rows, err := idx.db.Query(ctx, `
		SELECT content, metadata, 1 - (embedding <=> $2) AS score
		FROM document_chunks
		WHERE namespace = $1
		ORDER BY embedding <=> $2, position
		LIMIT $3`,
		namespace, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, &pipeline_type.IndexError{Op: "query", Namespace: namespace, Err: err}
	}
	defer rows.Close()

	var passages []pipeline_type.Passage
	for rows.Next() {
		var p pipeline_type.Passage
		var metadata []byte
		if err := rows.Scan(&p.Text, &metadata, &p.Score); err != nil {
			return nil, &pipeline_type.IndexError{Op: "query", Namespace: namespace, Err: err}
		}
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, &pipeline_type.IndexError{Op: "query", Namespace: namespace, Err: err}
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &pipeline_type.IndexError{Op: "query", Namespace: namespace, Err: err}
	}
	return passages, nil
}

func (idx *PgVectorIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	var exists bool
	err := idx.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM document_chunks WHERE namespace = $1)", namespace).Scan(&exists)
	if err != nil {
		return false, &pipeline_type.IndexError{Op: "exists", Namespace: namespace, Err: err}
	}
	return exists, nil
}

func (idx *PgVectorIndex) Count(ctx context.Context, namespace string) (int, error) {
	var count int
	err := idx.db.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks WHERE namespace = $1", namespace).Scan(&count)
	if err != nil {
		return 0, &pipeline_type.IndexError{Op: "count", Namespace: namespace, Err: err}
	}
	return count, nil
}

// MemoryIndex is a brute-force cosine index used by tests and the CLI when no
// database is configured.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]pipeline_type.VectorRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[string]pipeline_type.VectorRecord)}
}

func (idx *MemoryIndex) Upsert(ctx context.Context, namespace string, records []pipeline_type.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return &pipeline_type.IndexError{Op: "upsert", Namespace: namespace, Err: err}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	ns, ok := idx.namespaces[namespace]
	if !ok {
		ns = make(map[string]pipeline_type.VectorRecord)
		idx.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		ns[r.ID] = r
	}
	return nil
}

func (idx *MemoryIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]pipeline_type.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &pipeline_type.IndexError{Op: "query", Namespace: namespace, Err: err}
	}
	if k < 1 {
		return nil, &pipeline_type.IndexError{Op: "query", Namespace: namespace, Err: fmt.Errorf("k must be at least 1, got %d", k)}
	}

	idx.mu.RLock()
	passages := make([]pipeline_type.Passage, 0, len(idx.namespaces[namespace]))
	for _, r := range idx.namespaces[namespace] {
		passages = append(passages, pipeline_type.Passage{
			Text:     r.Text,
			Metadata: r.Metadata,
			Score:    cosineSimilarity(vector, r.Vector),
		})
	}
	idx.mu.RUnlock()

	slices.SortFunc(passages, func(a, b pipeline_type.Passage) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Metadata.Position, b.Metadata.Position)
	})
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

func (idx *MemoryIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	n, err := idx.Count(ctx, namespace)
	return n > 0, err
}

func (idx *MemoryIndex) Count(ctx context.Context, namespace string) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.namespaces[namespace]), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
