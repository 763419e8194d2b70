package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mikeboe/raggle/pkg/chunker"
	"github.com/mikeboe/raggle/pkg/config"
	"github.com/mikeboe/raggle/pkg/models"
	"github.com/mikeboe/raggle/pkg/vectorstore"
)

// ErrorAnswer is what the user sees when generation itself fails. The
// run still completes and writes output; only a failed search aborts.
const ErrorAnswer = "Sorry, something went wrong while generating the answer. Please check the logs and try again."

// Searcher discovers web documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (map[string]*models.WebDocument, error)
}

// PageScraper fills ScrapedText for each document in place, degrading
// per document on failure.
type PageScraper interface {
	ScrapeAll(ctx context.Context, docs map[string]*models.WebDocument)
}

// Reranker reorders retrieval results; implementations never fail, they
// fall back to the input order.
type Reranker interface {
	Rerank(ctx context.Context, query string, results *models.RetrievalResult) *models.RetrievalResult
}

// Generator produces the final answer text from the query and retrieved
// context.
type Generator interface {
	Generate(ctx context.Context, query string, results *models.RetrievalResult) (string, error)
}

// Pipeline sequences search, scrape, chunk, index, retrieve, rerank and
// generate for one query. Search failure aborts the run; every later
// stage degrades to an empty or unchanged value and the run completes.
type Pipeline struct {
	cfg       *config.Config
	searcher  Searcher
	scraper   PageScraper
	chunker   *chunker.Chunker
	store     vectorstore.Store
	reranker  Reranker
	generator Generator
	logger    *slog.Logger
}

func New(
	cfg *config.Config,
	searcher Searcher,
	scraper PageScraper,
	ck *chunker.Chunker,
	store vectorstore.Store,
	reranker Reranker,
	generator Generator,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		searcher:  searcher,
		scraper:   scraper,
		chunker:   ck,
		store:     store,
		reranker:  reranker,
		generator: generator,
		logger:    logger,
	}
}

// Run executes the full pipeline for one query and returns the answer
// text. The returned error is non-nil only when search yields nothing;
// in that case no answer is produced.
func (p *Pipeline) Run(ctx context.Context, query string) (string, error) {
	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID)

	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	logger.Info("Starting pipeline run", "query", query)

	docs, err := p.searcher.Search(ctx, query)
	if err != nil {
		logger.Error("Web search failed, aborting run", "error", err)
		return "", fmt.Errorf("search stage failed: %w", err)
	}
	logger.Info("Search stage completed", "documents", len(docs))

	p.scraper.ScrapeAll(ctx, docs)
	scraped := 0
	for _, d := range docs {
		if d.ScrapedText != "" {
			scraped++
		}
	}
	logger.Info("Scrape stage completed", "scraped", scraped, "empty", len(docs)-scraped)

	chunks := p.chunker.Chunk(docs)
	if len(chunks) == 0 {
		logger.Warn("Chunk stage produced no chunks, answer will have no context")
	} else {
		logger.Info("Chunk stage completed", "chunks", len(chunks))
	}

	if err := p.store.Upsert(ctx, chunks); err != nil {
		logger.Error("Index stage failed, continuing with empty index", "error", err)
	} else if count, err := p.store.Count(ctx); err == nil {
		logger.Info("Index stage completed", "indexed", count)
	}

	results, err := p.store.Query(ctx, query, p.cfg.TopK)
	if err != nil {
		logger.Error("Retrieve stage failed, continuing with empty results", "error", err)
		results = &models.RetrievalResult{}
	}
	logger.Info("Retrieve stage completed", "candidates", results.Len())

	retrieved := results
	if p.reranker != nil && p.cfg.RerankEnabled {
		results = p.reranker.Rerank(ctx, query, results)
		logger.Info("Rerank stage completed", "candidates", results.Len())
	}

	if p.cfg.StoreIntermediateResults {
		p.dumpDebugArtifact(logger, runID, query, retrieved, results)
	}

	answerText, err := p.generator.Generate(ctx, query, results)
	if err != nil {
		logger.Error("Generate stage failed, returning error answer", "error", err)
		return ErrorAnswer, nil
	}

	logger.Info("Pipeline run completed", "answer_length", len(answerText))
	return answerText, nil
}

type debugArtifact struct {
	RunID     string                  `json:"run_id"`
	Query     string                  `json:"query"`
	Retrieved *models.RetrievalResult `json:"retrieved"`
	Reranked  *models.RetrievalResult `json:"reranked"`
}

// dumpDebugArtifact persists the pre- and post-rerank retrieval state for
// offline inspection. Failures here only get logged; debugging output
// must never take a run down.
func (p *Pipeline) dumpDebugArtifact(logger *slog.Logger, runID, query string, retrieved, reranked *models.RetrievalResult) {
	artifact := debugArtifact{
		RunID:     runID,
		Query:     query,
		Retrieved: retrieved,
		Reranked:  reranked,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		logger.Error("Failed to marshal debug artifact", "error", err)
		return
	}
	path := p.cfg.DebugArtifactPath
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Error("Failed to create debug artifact directory", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Error("Failed to write debug artifact", "error", err)
		return
	}
	logger.Info("Saved retrieval debug artifact", "path", path)
}
