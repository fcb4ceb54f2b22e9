package rag_service

import (
    "context"
    "fmt"
    "log/slog"
    "math"

    "github.com/jackc/pgx/v5/pgxpool"
)

const chunkIndexName = "idx_document_chunks_embedding"

// IndexManager maintains the ivfflat index over document_chunks.
type IndexManager struct {
    db     *pgxpool.Pool
    logger *slog.Logger
}

func NewIndexManager(db *pgxpool.Pool, logger *slog.Logger) *IndexManager {
    return &IndexManager{
        db:     db,
        logger: logger,
    }
}

// optimalLists is sqrt(row count), never below 100.
func optimalLists(count int) int {
    lists := int(math.Sqrt(float64(count)))
    if lists < 100 {
        lists = 100
    }
    return lists
}

// needsRebuild reports whether the list count drifted more than half away from optimal.
func needsRebuild(currentLists, count int) bool {
    optimal := optimalLists(count)
    return math.Abs(float64(currentLists-optimal)) > float64(optimal)*0.5
}

func (im *IndexManager) CreateOrUpdateIndex(ctx context.Context) error {
    var count int
    if err := im.db.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&count); err != nil {
        return fmt.Errorf("failed to count chunks: %w", err)
    }
    lists := optimalLists(count)

    if _, err := im.db.Exec(ctx, "DROP INDEX IF EXISTS "+chunkIndexName); err != nil {
        return fmt.Errorf("failed to drop existing index: %w", err)
    }

    createIndexSQL := fmt.Sprintf(`
        CREATE INDEX %s
        ON document_chunks
        USING ivfflat (embedding vector_cosine_ops)
        WITH (lists = %d)
    `, chunkIndexName, lists)

    if _, err := im.db.Exec(ctx, createIndexSQL); err != nil {
        return fmt.Errorf("failed to create index: %w", err)
    }

    im.logger.Info("Vector index created/updated successfully",
        slog.Int("chunk_count", count),
        slog.Int("list_count", lists))

    return nil
}

// ReindexIfNeeded rebuilds the index when it is missing or its list count is far from optimal.
func (im *IndexManager) ReindexIfNeeded(ctx context.Context) error {
    var currentLists int
    err := im.db.QueryRow(ctx, `
        SELECT split_part(reloptions[1], '=', 2)::int
        FROM pg_class
        WHERE relname = $1
        AND reloptions IS NOT NULL
    `, chunkIndexName).Scan(&currentLists)
    if err != nil {
        im.logger.Info("Vector index missing, creating it", slog.String("index", chunkIndexName))
        return im.CreateOrUpdateIndex(ctx)
    }

    var count int
    if err := im.db.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&count); err != nil {
        return fmt.Errorf("failed to count chunks: %w", err)
    }

    if needsRebuild(currentLists, count) {
        im.logger.Info("Rebuilding vector index due to significant size change",
            slog.Int("current_lists", currentLists),
            slog.Int("optimal_lists", optimalLists(count)))
        return im.CreateOrUpdateIndex(ctx)
    }

    return nil
}
