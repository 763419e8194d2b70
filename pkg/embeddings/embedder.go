package embeddings

import "context"

// Embedder turns text into a vector. The same embedder must be used for
// ingestion and querying or the distances are meaningless.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
