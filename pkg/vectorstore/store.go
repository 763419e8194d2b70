package vectorstore

import (
	"context"
	"errors"

	"github.com/mikeboe/raggle/pkg/models"
)

// ErrWrite wraps ingestion failures (embedding or storage). Upserts are
// all-or-nothing: a failed batch leaves the store unchanged.
var ErrWrite = errors.New("vector store write failed")

// ErrQuery wraps retrieval failures. An empty store is not a failure; a
// query against it returns an empty result.
var ErrQuery = errors.New("vector store query failed")

// Store is the upsertable, queryable nearest-neighbor index the pipeline
// writes chunks into. The concrete engine (in-memory or Postgres) is
// swappable without touching pipeline logic.
type Store interface {
	// Upsert embeds each chunk's text and stores or replaces the entry
	// under the chunk id.
	Upsert(ctx context.Context, chunks []models.Chunk) error

	// Query embeds text with the same embedder used at ingestion and
	// returns the topK nearest entries, most similar first (ascending
	// distance).
	Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error)

	// Count reports the number of distinct ids stored.
	Count(ctx context.Context) (int, error)
}
