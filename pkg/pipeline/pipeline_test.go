package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikeboe/raggle/pkg/chunker"
	"github.com/mikeboe/raggle/pkg/config"
	"github.com/mikeboe/raggle/pkg/embeddings"
	"github.com/mikeboe/raggle/pkg/models"
	"github.com/mikeboe/raggle/pkg/search"
	"github.com/mikeboe/raggle/pkg/vectorstore"
)

type fakeSearcher struct {
	docs map[string]*models.WebDocument
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) (map[string]*models.WebDocument, error) {
	return f.docs, f.err
}

// fakeScraper fills each document from a canned text map; urls without an
// entry stay empty, like a failed fetch.
type fakeScraper struct {
	texts map[string]string
}

func (f *fakeScraper) ScrapeAll(_ context.Context, docs map[string]*models.WebDocument) {
	for url, doc := range docs {
		doc.ScrapedText = f.texts[url]
	}
}

type fakeGenerator struct {
	answer  string
	err     error
	gotCtx  *models.RetrievalResult
	queries []string
}

func (f *fakeGenerator) Generate(_ context.Context, query string, results *models.RetrievalResult) (string, error) {
	f.queries = append(f.queries, query)
	f.gotCtx = results
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type reverseReranker struct{ called bool }

func (r *reverseReranker) Rerank(_ context.Context, _ string, results *models.RetrievalResult) *models.RetrievalResult {
	r.called = true
	n := results.Len()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = n - 1 - i
	}
	out := results.Clone()
	if err := out.ApplyPermutation(perm); err != nil {
		return results
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		TopK:         5,
		ChunkSize:    100,
		ChunkOverlap: 20,
	}
}

func newChunker(t *testing.T, size, overlap int) *chunker.Chunker {
	t.Helper()
	ck, err := chunker.New(size, overlap)
	if err != nil {
		t.Fatal(err)
	}
	return ck
}

func TestRunEndToEnd(t *testing.T) {
	searcher := &fakeSearcher{docs: map[string]*models.WebDocument{
		"https://a": {Title: "A", URL: "https://a"},
		"https://b": {Title: "B", URL: "https://b"},
	}}
	scraper := &fakeScraper{texts: map[string]string{
		"https://a": strings.Repeat("planets orbit the sun in our solar system ", 5),
		"https://b": strings.Repeat("bread baking requires yeast and patience always ", 5),
	}}
	store := vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(128))
	gen := &fakeGenerator{answer: "there are eight planets"}

	p := New(testConfig(), searcher, scraper, newChunker(t, 100, 20), store, nil, gen, nil)

	got, err := p.Run(context.Background(), "how many planets are there")
	if err != nil {
		t.Fatal(err)
	}
	if got != "there are eight planets" {
		t.Errorf("answer = %q", got)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Error("no chunks were indexed")
	}
	if gen.gotCtx == nil || gen.gotCtx.Len() == 0 {
		t.Error("generator received no retrieval context")
	}
	if gen.gotCtx.Len() > 5 {
		t.Errorf("generator received %d candidates, want at most TopK=5", gen.gotCtx.Len())
	}
}

func TestRunSearchFailureAborts(t *testing.T) {
	searcher := &fakeSearcher{err: search.ErrUnavailable}
	gen := &fakeGenerator{answer: "should never be produced"}

	p := New(testConfig(), searcher, &fakeScraper{}, newChunker(t, 100, 20),
		vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(64)), nil, gen, nil)

	got, err := p.Run(context.Background(), "q")
	if !errors.Is(err, search.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	if got != "" {
		t.Errorf("answer = %q, want empty on abort", got)
	}
	if len(gen.queries) != 0 {
		t.Error("generator was reached after a search failure")
	}
}

func TestRunDegradesWhenAllScrapesFail(t *testing.T) {
	searcher := &fakeSearcher{docs: map[string]*models.WebDocument{
		"https://a": {Title: "A", URL: "https://a"},
	}}
	// No scraped text at all: zero chunks, empty index, empty retrieval.
	scraper := &fakeScraper{texts: map[string]string{}}
	gen := &fakeGenerator{answer: "answered without context"}

	p := New(testConfig(), searcher, scraper, newChunker(t, 100, 20),
		vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(64)), nil, gen, nil)

	got, err := p.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("degraded run should complete, got %v", err)
	}
	if got != "answered without context" {
		t.Errorf("answer = %q", got)
	}
	if gen.gotCtx == nil || gen.gotCtx.Len() != 0 {
		t.Errorf("generator context = %+v, want empty result", gen.gotCtx)
	}
}

func TestRunGenerationFailureReturnsErrorAnswer(t *testing.T) {
	searcher := &fakeSearcher{docs: map[string]*models.WebDocument{
		"https://a": {Title: "A", URL: "https://a"},
	}}
	gen := &fakeGenerator{err: errors.New("model down")}

	p := New(testConfig(), searcher, &fakeScraper{}, newChunker(t, 100, 20),
		vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(64)), nil, gen, nil)

	got, err := p.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("generation failure must not abort the run, got %v", err)
	}
	if got != ErrorAnswer {
		t.Errorf("answer = %q, want the error answer", got)
	}
}

func TestRunRerankWiring(t *testing.T) {
	searcher := &fakeSearcher{docs: map[string]*models.WebDocument{
		"https://a": {Title: "A", URL: "https://a"},
	}}
	scraper := &fakeScraper{texts: map[string]string{
		"https://a": strings.Repeat("relevant text about the topic at hand today ", 10),
	}}

	t.Run("Enabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.RerankEnabled = true
		rr := &reverseReranker{}
		gen := &fakeGenerator{answer: "ok"}

		p := New(cfg, searcher, scraper, newChunker(t, 100, 20),
			vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(64)), rr, gen, nil)
		if _, err := p.Run(context.Background(), "q"); err != nil {
			t.Fatal(err)
		}
		if !rr.called {
			t.Error("reranker was not invoked")
		}
	})

	t.Run("Disabled by config", func(t *testing.T) {
		cfg := testConfig()
		cfg.RerankEnabled = false
		rr := &reverseReranker{}
		gen := &fakeGenerator{answer: "ok"}

		p := New(cfg, searcher, scraper, newChunker(t, 100, 20),
			vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(64)), rr, gen, nil)
		if _, err := p.Run(context.Background(), "q"); err != nil {
			t.Fatal(err)
		}
		if rr.called {
			t.Error("reranker ran despite being disabled")
		}
	})
}

func TestRunWritesDebugArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.StoreIntermediateResults = true
	cfg.RerankEnabled = true
	cfg.DebugArtifactPath = filepath.Join(dir, "retrieval_debug.json")

	searcher := &fakeSearcher{docs: map[string]*models.WebDocument{
		"https://a": {Title: "A", URL: "https://a"},
	}}
	scraper := &fakeScraper{texts: map[string]string{
		"https://a": strings.Repeat("some text worth indexing for this query here ", 10),
	}}

	p := New(cfg, searcher, scraper, newChunker(t, 100, 20),
		vectorstore.NewMemoryStore(embeddings.NewHashEmbedder(64)),
		&reverseReranker{}, &fakeGenerator{answer: "ok"}, nil)

	if _, err := p.Run(context.Background(), "the query"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.DebugArtifactPath)
	if err != nil {
		t.Fatalf("debug artifact not written: %v", err)
	}
	var artifact struct {
		RunID     string                  `json:"run_id"`
		Query     string                  `json:"query"`
		Retrieved *models.RetrievalResult `json:"retrieved"`
		Reranked  *models.RetrievalResult `json:"reranked"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		t.Fatal(err)
	}
	if artifact.Query != "the query" {
		t.Errorf("query = %q", artifact.Query)
	}
	if artifact.RunID == "" {
		t.Error("run_id missing")
	}
	if artifact.Retrieved == nil || artifact.Reranked == nil {
		t.Error("artifact missing retrieval snapshots")
	}
	if artifact.Retrieved.Len() != artifact.Reranked.Len() {
		t.Errorf("snapshot lengths differ: %d vs %d", artifact.Retrieved.Len(), artifact.Reranked.Len())
	}
}
