package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every knob for one pipeline run. It is constructed once
// in cmd/ and passed into each component; no package reads the
// environment on its own.
type Config struct {
	SearchApiKey    string
	GoogleApiKey    string
	DatabaseURL     string
	GenerationModel string
	EmbeddingModel  string
	EmbeddingDim    int
	CollectionName  string
	Port            string

	ResultCount  int
	ChunkSize    int
	ChunkOverlap int
	TopK         int

	RerankEnabled   bool
	MaxContextChars int

	ScrapeWorkers int
	ScrapeTimeout time.Duration
	RunTimeout    time.Duration

	StoreIntermediateResults bool
	DebugArtifactPath        string
	OutputPath               string
	PromptDir                string
}

func Load() *Config {
	return &Config{
		SearchApiKey:    getEnv("SEARCH_API_KEY", ""),
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		EmbeddingDim:    getEnvAsInt("EMBEDDING_DIM", 1536),
		CollectionName:  getEnv("COLLECTION_NAME", "web_chunks"),
		Port:            getEnv("PORT", "3000"),

		ResultCount:  getEnvAsInt("SEARCH_RESULT_COUNT", 10),
		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
		TopK:         getEnvAsInt("TOP_K", 10),

		RerankEnabled:   getEnvAsBool("RERANK_ENABLED", true),
		MaxContextChars: getEnvAsInt("MAX_CONTEXT_CHARS", 12000),

		ScrapeWorkers: getEnvAsInt("SCRAPE_WORKERS", 3),
		ScrapeTimeout: time.Duration(getEnvAsInt("SCRAPE_TIMEOUT_SECONDS", 15)) * time.Second,
		RunTimeout:    time.Duration(getEnvAsInt("RUN_TIMEOUT_SECONDS", 300)) * time.Second,

		StoreIntermediateResults: getEnvAsBool("STORE_INTERMEDIATE_RESULTS", false),
		DebugArtifactPath:        getEnv("DEBUG_ARTIFACT_PATH", "temp/retrieval_debug.json"),
		OutputPath:               getEnv("OUTPUT_PATH", "temp/output.txt"),
		PromptDir:                getEnv("PROMPT_DIR", ""),
	}
}

// Validate rejects configurations that would corrupt the pipeline rather
// than degrade it. A zero or negative chunk stride would loop forever or
// skip content, so it is fatal at startup.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.ResultCount <= 0 {
		return fmt.Errorf("search result count must be positive, got %d", c.ResultCount)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.MaxContextChars <= 0 {
		return fmt.Errorf("max context chars must be positive, got %d", c.MaxContextChars)
	}
	if c.ScrapeWorkers <= 0 {
		return fmt.Errorf("scrape workers must be positive, got %d", c.ScrapeWorkers)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
