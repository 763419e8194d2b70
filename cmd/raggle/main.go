package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/raggle/pkg/config"
	"github.com/mikeboe/raggle/pkg/database"
	"github.com/mikeboe/raggle/pkg/embeddings"
	"github.com/mikeboe/raggle/pkg/pipeline"
	"github.com/mikeboe/raggle/pkg/vectorstore"
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	rootCmd := &cobra.Command{
		Use:   "raggle [query]",
		Short: "Answer a question from live web search results",
		Long: `raggle searches the web for a query, scrapes and indexes the result pages
into a vector store, and generates an answer grounded in the retrieved text.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				// Missing query is usage, not an error.
				return cmd.Help()
			}

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				slog.Error("Invalid configuration", "error", err)
				os.Exit(1)
			}

			ctx := context.Background()

			store, cleanup, err := buildStore(ctx, cfg)
			if err != nil {
				slog.Error("Failed to set up vector store", "error", err)
				os.Exit(1)
			}
			defer cleanup()

			pl, err := pipeline.Build(ctx, cfg, store, slog.Default())
			if err != nil {
				slog.Error("Failed to build pipeline", "error", err)
				os.Exit(1)
			}

			answer, err := pl.Run(ctx, query)
			if err != nil {
				slog.Error("Run aborted", "error", err)
				os.Exit(1)
			}

			if err := writeAnswer(cfg.OutputPath, answer); err != nil {
				slog.Warn("Failed to write answer file", "path", cfg.OutputPath, "error", err)
			}
			fmt.Println(answer)
			return nil
		},
	}

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildStore picks the vector store engine: Postgres/pgvector when a
// DATABASE_URL is configured, otherwise the per-run in-memory store.
func buildStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, func(), error) {
	embedder := buildEmbedder(ctx, cfg)

	if cfg.DatabaseURL == "" {
		return vectorstore.NewMemoryStore(embedder), func() {}, nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureVectorExtension(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := db.CreateChunksTable(ctx, cfg.CollectionName, cfg.EmbeddingDim); err != nil {
		db.Close()
		return nil, nil, err
	}
	store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName, embedder)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}

// buildEmbedder returns nil when the embedding client cannot be built;
// the store then reports write/query errors and the pipeline degrades
// instead of crashing.
func buildEmbedder(ctx context.Context, cfg *config.Config) embeddings.Embedder {
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDim)
	if err != nil {
		slog.Error("Embedding client unavailable, retrieval will degrade", "error", err)
		return nil
	}
	return embedder
}

func writeAnswer(path, answer string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(answer), 0644)
}
