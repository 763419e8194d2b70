package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mikeboe/raggle/pkg/embeddings"
	"github.com/mikeboe/raggle/pkg/models"
)

type memoryEntry struct {
	vector   []float32
	text     string
	metadata models.ChunkMetadata
}

// MemoryStore is the per-run ephemeral index: a brute-force cosine store
// over an in-process map. It exists for the lifetime of one pipeline run
// and is never shared between runs.
type MemoryStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore(embedder embeddings.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
	}
}

// Upsert embeds the whole batch before touching the index, so a failed
// embedding leaves the store exactly as it was.
func (s *MemoryStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if s.embedder == nil {
		return fmt.Errorf("no embedder configured: %w", ErrWrite)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %v: %w", err, ErrWrite)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks: %w", len(vectors), len(chunks), ErrWrite)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		s.entries[c.ID] = memoryEntry{
			vector:   vectors[i],
			text:     c.Text,
			metadata: c.Metadata,
		}
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, text string, topK int) (*models.RetrievalResult, error) {
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if empty {
		return &models.RetrievalResult{}, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured: %w", ErrQuery)
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %v: %w", err, ErrQuery)
	}

	type scored struct {
		id       string
		distance float64
		entry    memoryEntry
	}

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.entries))
	for id, e := range s.entries {
		candidates = append(candidates, scored{
			id:       id,
			distance: cosineDistance(queryVec, e.vector),
			entry:    e,
		})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	result := &models.RetrievalResult{
		IDs:       make([]string, 0, len(candidates)),
		Documents: make([]string, 0, len(candidates)),
		Metadatas: make([]models.ChunkMetadata, 0, len(candidates)),
		Distances: make([]float64, 0, len(candidates)),
	}
	for _, c := range candidates {
		result.IDs = append(result.IDs, c.id)
		result.Documents = append(result.Documents, c.entry.text)
		result.Metadatas = append(result.Metadatas, c.entry.metadata)
		result.Distances = append(result.Distances, c.distance)
	}
	return result, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// cosineDistance is 1 - cosine similarity, so identical direction scores
// 0 and orthogonal vectors score 1. Mismatched or zero vectors score the
// maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
