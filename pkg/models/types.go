package models

import (
	"fmt"
	"net/url"
)

// WebDocument represents a single discovered web page. It is created by
// the search stage and filled in once by the scrape stage; ScrapedText
// stays empty when scraping fails, the document itself is kept.
type WebDocument struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	ScrapedText string `json:"scraped_text"`
}

// Validate checks that the document carries a well-formed absolute URL.
func (d *WebDocument) Validate() error {
	if d.URL == "" {
		return fmt.Errorf("document has empty URL")
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("invalid document URL %q: %w", d.URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("document URL %q is not absolute", d.URL)
	}
	return nil
}

// ChunkMetadata is carried alongside each chunk for citation/display.
// It is not part of similarity scoring.
type ChunkMetadata struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Chunk is the atomic unit stored and retrieved by the vector store.
// The ID is derived from (url, start offset), so re-chunking the same
// document produces the same ids and re-ingestion overwrites instead of
// duplicating.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RetrievalResult holds the parallel, positionally aligned arrays a
// vector store query returns. Every field of candidate length shares one
// ordering; reordering must go through ApplyPermutation so the alignment
// cannot drift.
type RetrievalResult struct {
	IDs          []string        `json:"ids"`
	Documents    []string        `json:"documents"`
	Metadatas    []ChunkMetadata `json:"metadatas"`
	Distances    []float64       `json:"distances"`
	RerankScores []float64       `json:"reranked_scores,omitempty"`
}

// Len reports the number of candidates.
func (r *RetrievalResult) Len() int {
	return len(r.Documents)
}

// Clone returns a deep copy, so rerankers can reorder without mutating
// the retrieval-stage snapshot.
func (r *RetrievalResult) Clone() *RetrievalResult {
	out := &RetrievalResult{}
	if r.IDs != nil {
		out.IDs = append([]string(nil), r.IDs...)
	}
	if r.Documents != nil {
		out.Documents = append([]string(nil), r.Documents...)
	}
	if r.Metadatas != nil {
		out.Metadatas = append([]ChunkMetadata(nil), r.Metadatas...)
	}
	if r.Distances != nil {
		out.Distances = append([]float64(nil), r.Distances...)
	}
	if r.RerankScores != nil {
		out.RerankScores = append([]float64(nil), r.RerankScores...)
	}
	return out
}

// ApplyPermutation reorders every parallel array whose length matches the
// permutation. Arrays of any other length (absent or optional fields) are
// left untouched. perm[i] gives the old position of the element that ends
// up at position i.
func (r *RetrievalResult) ApplyPermutation(perm []int) error {
	n := len(perm)
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			return fmt.Errorf("invalid permutation of length %d", n)
		}
		seen[p] = true
	}

	if len(r.IDs) == n {
		r.IDs = permuteStrings(r.IDs, perm)
	}
	if len(r.Documents) == n {
		r.Documents = permuteStrings(r.Documents, perm)
	}
	if len(r.Metadatas) == n {
		out := make([]ChunkMetadata, n)
		for i, p := range perm {
			out[i] = r.Metadatas[p]
		}
		r.Metadatas = out
	}
	if len(r.Distances) == n {
		r.Distances = permuteFloats(r.Distances, perm)
	}
	if len(r.RerankScores) == n {
		r.RerankScores = permuteFloats(r.RerankScores, perm)
	}
	return nil
}

func permuteStrings(s []string, perm []int) []string {
	out := make([]string, len(perm))
	for i, p := range perm {
		out[i] = s[p]
	}
	return out
}

func permuteFloats(s []float64, perm []int) []float64 {
	out := make([]float64, len(perm))
	for i, p := range perm {
		out[i] = s[p]
	}
	return out
}
