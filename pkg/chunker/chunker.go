package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/mikeboe/raggle/pkg/models"
)

// ErrInvalidConfig is returned for window parameters whose stride would
// be zero or negative: such a loop never advances (or skips content), so
// it is rejected up front instead of silently tolerated.
var ErrInvalidConfig = errors.New("invalid chunking configuration")

// Chunker splits scraped text into fixed-size overlapping windows.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", size, ErrInvalidConfig)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d): %w", overlap, size, ErrInvalidConfig)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk slides a window of the configured size across each document's
// scraped text, advancing by size-overlap, with a final partial window
// when a remainder is left. Chunks accumulate across all documents. An
// empty document contributes zero chunks.
//
// The chunk id is url + "_" + start offset, so re-chunking the same
// document yields the same ids and re-ingestion overwrites rather than
// duplicates.
func (c *Chunker) Chunk(docs map[string]*models.WebDocument) []models.Chunk {
	urls := make([]string, 0, len(docs))
	for u := range docs {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	chunks := make([]models.Chunk, 0)
	stride := c.size - c.overlap
	for _, u := range urls {
		doc := docs[u]
		text := doc.ScrapedText
		for pos := 0; pos < len(text); pos += stride {
			end := pos + c.size
			if end > len(text) {
				end = len(text)
			}
			chunks = append(chunks, models.Chunk{
				ID:   doc.URL + "_" + strconv.Itoa(pos),
				Text: text[pos:end],
				Metadata: models.ChunkMetadata{
					Title: doc.Title,
					URL:   doc.URL,
				},
			})
		}
	}
	return chunks
}
