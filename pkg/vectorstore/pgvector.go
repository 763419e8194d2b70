package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mikeboe/raggle/pkg/embeddings"
	"github.com/mikeboe/raggle/pkg/models"
)

// PGVectorStore is the Postgres-backed engine, used by the server so a
// run's chunks can be inspected after the fact. Chunk ids are the primary
// key, so re-ingestion replaces entries instead of duplicating them.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
	embedder  embeddings.Embedder
}

// isValidTableName validates that a table name contains only safe characters
// to prevent SQL injection attacks
func isValidTableName(name string) bool {
	// Only allow alphanumeric characters and underscores
	// Table names must start with a letter or underscore and be between 1-63 chars (PostgreSQL limit)
	matched, _ := regexp.MatchString(`^[a-z_][a-zA-Z0-9_]{0,62}$`, name)
	return matched
}

func NewPGVectorStore(pool *pgxpool.Pool, tableName string, embedder embeddings.Embedder) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-63 characters long")
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
		embedder:  embedder,
	}, nil
}

// Upsert embeds the whole batch first and then writes it as one pgx
// batch, so a failed embedding or insert leaves no partial ingest behind.
func (vs *PGVectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if vs.embedder == nil {
		return fmt.Errorf("no embedder configured: %w", ErrWrite)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := vs.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %v: %w", err, ErrWrite)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding
	`, pgx.Identifier{vs.tableName}.Sanitize())

	batch := &pgx.Batch{}
	for i, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %v: %w", err, ErrWrite)
		}
		batch.Queue(query, c.ID, c.Text, metadataJSON, pgvector.NewVector(vectors[i]))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v: %w", err, ErrWrite)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert chunk: %v: %w", err, ErrWrite)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %v: %w", err, ErrWrite)
	}
	return tx.Commit(ctx)
}

func (vs *PGVectorStore) Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error) {
	count, err := vs.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return &models.RetrievalResult{}, nil
	}
	if vs.embedder == nil {
		return nil, fmt.Errorf("no embedder configured: %w", ErrQuery)
	}

	queryVec, err := vs.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %v: %w", err, ErrQuery)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgx.Identifier{vs.tableName}.Sanitize())

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %v: %w", err, ErrQuery)
	}
	defer rows.Close()

	result := &models.RetrievalResult{}
	for rows.Next() {
		var (
			id           string
			content      string
			metadataJSON []byte
			distance     float64
		)
		if err := rows.Scan(&id, &content, &metadataJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v: %w", err, ErrQuery)
		}
		var meta models.ChunkMetadata
		if err := json.Unmarshal(metadataJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %v: %w", err, ErrQuery)
		}
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, content)
		result.Metadatas = append(result.Metadatas, meta)
		result.Distances = append(result.Distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %v: %w", err, ErrQuery)
	}
	return result, nil
}

func (vs *PGVectorStore) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{vs.tableName}.Sanitize())
	var count int
	if err := vs.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed: %v: %w", err, ErrQuery)
	}
	return count, nil
}
