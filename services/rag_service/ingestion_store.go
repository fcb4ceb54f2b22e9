package rag_service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serisow/claimdesk/pipeline_type"
)

// IngestionStore records which documents are fully indexed.
type IngestionStore interface {
	Has(ctx context.Context, identity string) (bool, error)
	// Mark returns pipeline_type.ErrDuplicateIngestion when identity is already marked.
	Mark(ctx context.Context, identity string) error
}

// Locker is implemented by stores that can serialize ingestion across processes.
type Locker interface {
	Lock(ctx context.Context, identity string) (unlock func(), err error)
}

type PostgresIngestionStore struct {
	db *pgxpool.Pool
}

func NewPostgresIngestionStore(db *pgxpool.Pool) *PostgresIngestionStore {
	return &PostgresIngestionStore{db: db}
}

func (s *PostgresIngestionStore) Has(ctx context.Context, identity string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM processed_documents WHERE document_url = $1)", identity).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ingestion record: %w", err)
	}
	return exists, nil
}

func (s *PostgresIngestionStore) Mark(ctx context.Context, identity string) error {
	tag, err := s.db.Exec(ctx, "INSERT INTO processed_documents (document_url) VALUES ($1) ON CONFLICT (document_url) DO NOTHING", identity)
	if err != nil {
		return fmt.Errorf("failed to write ingestion record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline_type.ErrDuplicateIngestion
	}
	return nil
}

// Lock takes a session advisory lock on a dedicated connection. The returned
// func releases the lock and the connection.
func (s *PostgresIngestionStore) Lock(ctx context.Context, identity string) (func(), error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for ingestion lock: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtextextended($1, 0))", identity); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take ingestion lock: %w", err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtextextended($1, 0))", identity); err != nil {
			// a connection that may still hold the lock must not go back to the pool
			conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}, nil
}

type MemoryIngestionStore struct {
	mu      sync.Mutex
	records map[string]time.Time
}

func NewMemoryIngestionStore() *MemoryIngestionStore {
	return &MemoryIngestionStore{records: make(map[string]time.Time)}
}

func (s *MemoryIngestionStore) Has(ctx context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[identity]
	return ok, nil
}

func (s *MemoryIngestionStore) Mark(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[identity]; ok {
		return pipeline_type.ErrDuplicateIngestion
	}
	s.records[identity] = time.Now()
	return nil
}

// Len returns the number of records.
func (s *MemoryIngestionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
