package pipeline

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/raggle/pkg/answer"
	"github.com/mikeboe/raggle/pkg/chunker"
	"github.com/mikeboe/raggle/pkg/clients"
	"github.com/mikeboe/raggle/pkg/config"
	"github.com/mikeboe/raggle/pkg/prompts"
	"github.com/mikeboe/raggle/pkg/rerank"
	"github.com/mikeboe/raggle/pkg/scraper"
	"github.com/mikeboe/raggle/pkg/search"
	"github.com/mikeboe/raggle/pkg/vectorstore"
)

// Build wires the default production pipeline on top of the given vector
// store. Invalid chunking configuration is the only fatal condition; a
// missing or broken generation client degrades to the error answer at
// run time instead of failing here.
func Build(ctx context.Context, cfg *config.Config, store vectorstore.Store, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ck, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	promptStore := prompts.NewStore()
	if cfg.PromptDir != "" {
		if err := promptStore.LoadDir(cfg.PromptDir); err != nil {
			logger.Warn("Failed to load prompt overrides, using defaults", "dir", cfg.PromptDir, "error", err)
		}
	}

	var llm llms.Model
	if client, err := clients.GoogleAi(ctx, cfg.GoogleApiKey, cfg.GenerationModel); err != nil {
		logger.Error("Generation client unavailable, answers will degrade", "error", err)
	} else {
		llm = client
	}

	var reranker Reranker
	if cfg.RerankEnabled && llm != nil {
		reranker = rerank.New(rerank.NewLLMScorer(llm, logger), logger)
	}

	return New(
		cfg,
		search.NewBraveClient(cfg.SearchApiKey, cfg.ResultCount, logger),
		scraper.New(cfg.ScrapeWorkers, cfg.ScrapeTimeout, logger),
		ck,
		store,
		reranker,
		answer.NewGenerator(llm, promptStore, cfg.MaxContextChars, logger),
		logger,
	), nil
}
