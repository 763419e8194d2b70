package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/raggle/pkg/models"
	"github.com/mikeboe/raggle/pkg/prompts"
)

// ErrUnavailable means the generation provider cannot be used: missing
// credentials or a provider-side failure.
var ErrUnavailable = errors.New("answer generation unavailable")

// Separator sits between chunks in the assembled context so the model
// can tell excerpts apart.
const Separator = "###"

// Fixed sampling configuration for answer generation.
const (
	temperature = 0.7
	topP        = 0.95
)

// Generator assembles a bounded context window from retrieved chunks and
// asks the generation model for an answer grounded in it.
type Generator struct {
	llm             llms.Model
	prompts         *prompts.Store
	maxContextChars int
	logger          *slog.Logger
}

func NewGenerator(llm llms.Model, store *prompts.Store, maxContextChars int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		llm:             llm,
		prompts:         store,
		maxContextChars: maxContextChars,
		logger:          logger,
	}
}

// BuildContext joins the result documents, best-ranked first, with the
// separator, and enforces the context budget by dropping the lowest
// ranked chunks. A single chunk that alone exceeds the budget is
// truncated rather than dropped so the context is never empty when
// chunks exist.
func (g *Generator) BuildContext(results *models.RetrievalResult) string {
	var b strings.Builder
	for i, doc := range results.Documents {
		sep := ""
		if i > 0 {
			sep = Separator
		}
		if g.maxContextChars > 0 && b.Len()+len(sep)+len(doc) > g.maxContextChars {
			if i == 0 {
				b.WriteString(doc[:g.maxContextChars])
				g.logger.Warn("Truncated oversized chunk to fit context budget", "budget", g.maxContextChars)
			} else {
				g.logger.Info("Context budget reached, dropping lower-ranked chunks",
					"kept", i, "dropped", len(results.Documents)-i)
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(doc)
	}
	return b.String()
}

// Generate renders the prompt templates with the query and assembled
// context and returns the model output verbatim.
func (g *Generator) Generate(ctx context.Context, query string, results *models.RetrievalResult) (string, error) {
	if g.llm == nil {
		return "", fmt.Errorf("no generation model configured: %w", ErrUnavailable)
	}

	contextWindow := g.BuildContext(results)
	if contextWindow == "" {
		g.logger.Warn("Generating answer with empty context")
	}

	systemPrompt, err := g.prompts.Get(prompts.SystemPrompt)
	if err != nil {
		return "", err
	}
	userPrompt, err := g.prompts.Render(prompts.UserPrompt, map[string]string{
		"query":   query,
		"context": contextWindow,
	})
	if err != nil {
		return "", err
	}

	resp, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}, llms.WithTemperature(temperature), llms.WithTopP(topP))
	if err != nil {
		return "", fmt.Errorf("generation failed: %v: %w", err, ErrUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices: %w", ErrUnavailable)
	}

	return resp.Choices[0].Content, nil
}
