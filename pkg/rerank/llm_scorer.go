package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// LLMScorer scores (query, document) pairs with a generative model acting
// as a cross-encoder: all candidates go out in one batch prompt and come
// back as a JSON score list.
type LLMScorer struct {
	Model  llms.Model
	Logger *slog.Logger
}

func NewLLMScorer(model llms.Model, logger *slog.Logger) *LLMScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMScorer{Model: model, Logger: logger}
}

const scorerSystemPrompt = `You are a relevance judge.
Rate how well each passage answers the query on a scale from 0 to 10 (10 = directly answers it).
Return a JSON object mapping every passage ID to its score.`

const scorerSchema = `Return the JSON object directly without any formatting or additional text. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "scores": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "integer"},
          "score": {"type": "number"}
        },
        "required": ["id", "score"]
      }
    }
  },
  "required": ["scores"]
}`

// excerptLimit bounds the per-passage text sent to the judge; scoring
// does not need the full chunk.
const excerptLimit = 600

func (s *LLMScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if s.Model == nil {
		return nil, fmt.Errorf("no scoring model configured")
	}

	var passages strings.Builder
	for i, doc := range documents {
		excerpt := doc
		if runes := []rune(doc); len(runes) > excerptLimit {
			excerpt = string(runes[:excerptLimit])
		}
		passages.WriteString(fmt.Sprintf("ID: %d\nPassage: %s\n\n", i, excerpt))
	}

	input := fmt.Sprintf("Query: %s\n\nPassages:\n%s", query, passages.String())

	type scoreItem struct {
		ID    int     `json:"id"`
		Score float64 `json:"score"`
	}
	type scoreResponse struct {
		Scores []scoreItem `json:"scores"`
	}
	var parsed scoreResponse

	_, err := s.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, scorerSystemPrompt+"\n\n# Response Format:\n"+scorerSchema),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		parsed = scoreResponse{}
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if len(parsed.Scores) == 0 {
			return fmt.Errorf("empty score list")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Unscored candidates keep 0 and sink to the bottom.
	scores := make([]float64, len(documents))
	for _, item := range parsed.Scores {
		if item.ID >= 0 && item.ID < len(scores) {
			scores[item.ID] = item.Score
		}
	}
	return scores, nil
}

// generateWithRetry attempts to generate content and validates it using
// the provided function, retrying up to 3 times on model or validation
// failure.
func (s *LLMScorer) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			s.Logger.Warn("Retrying relevance scoring", "attempt", i+1, "last_error", lastErr)
			time.Sleep(time.Second * time.Duration(i))
		}

		resp, err := s.Model.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}
		return content, nil
	}

	return "", fmt.Errorf("scoring failed after %d retries: %w", maxRetries, lastErr)
}
