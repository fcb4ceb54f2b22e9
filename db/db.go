package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Options struct {
	URL                 string
	MaxRetries          int
	RetryDelay          time.Duration
	EmbeddingDimensions int
}

func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*pgxpool.Pool, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	var pool *pgxpool.Pool
	for i := 0; i < opts.MaxRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				logger.Info("Successfully connected to the database")
				break
			}
			pool.Close()
		}

		logger.Warn("Failed to connect to the database",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", opts.MaxRetries),
			slog.String("error", err.Error()))
		if i < opts.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.RetryDelay):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database after %d attempts: %w", opts.MaxRetries, err)
	}

	if err := Migrate(ctx, pool, opts.EmbeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Migrate enables pgvector and creates the chunk and ingestion record tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", dimensions)
	}

	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS document_chunks (
				id UUID PRIMARY KEY,
				namespace TEXT NOT NULL,
				position INTEGER NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
				embedding vector(%d) NOT NULL
			)`, dimensions),
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_namespace ON document_chunks (namespace, position)",
		`
			CREATE TABLE IF NOT EXISTS processed_documents (
				id SERIAL PRIMARY KEY,
				document_url TEXT UNIQUE NOT NULL,
				indexed_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("unable to run migration: %w", err)
		}
	}
	return nil
}
