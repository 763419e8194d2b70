package answer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/raggle/pkg/models"
	"github.com/mikeboe/raggle/pkg/prompts"
)

// fakeLLM echoes a canned reply and records the last prompt it saw.
type fakeLLM struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	var b strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				b.WriteString(text.Text)
			}
		}
	}
	f.lastPrompt = b.String()
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.reply}},
	}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func resultsWithDocs(docs ...string) *models.RetrievalResult {
	return &models.RetrievalResult{Documents: docs}
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildContextJoinsWithSeparator(t *testing.T) {
	g := NewGenerator(nil, prompts.NewStore(), 0, nil)

	got := g.BuildContext(resultsWithDocs("one", "two", "three"))
	if got != "one###two###three" {
		t.Errorf("context = %q", got)
	}
}

func TestBuildContextEmptyResults(t *testing.T) {
	g := NewGenerator(nil, prompts.NewStore(), 1000, nil)
	if got := g.BuildContext(resultsWithDocs()); got != "" {
		t.Errorf("context = %q, want empty", got)
	}
}

func TestBuildContextDropsLowestRankedFirst(t *testing.T) {
	// Budget fits the first two chunks plus a separator, not the third.
	g := NewGenerator(nil, prompts.NewStore(), 11, nil)

	got := g.BuildContext(resultsWithDocs("aaaa", "bbbb", "cccc"))
	if got != "aaaa###bbbb" {
		t.Errorf("context = %q, want first two chunks only", got)
	}
}

func TestBuildContextTruncatesSingleOversizedChunk(t *testing.T) {
	g := NewGenerator(nil, prompts.NewStore(), 10, nil)

	got := g.BuildContext(resultsWithDocs(strings.Repeat("x", 50)))
	if got != strings.Repeat("x", 10) {
		t.Errorf("context = %q, want 10 chars", got)
	}
}

func TestGenerateReturnsModelOutputVerbatim(t *testing.T) {
	llm := &fakeLLM{reply: "  the answer, verbatim \n"}
	g := NewGenerator(llm, prompts.NewStore(), 1000, nil)

	got, err := g.Generate(context.Background(), "what is RAG", resultsWithDocs("chunk one", "chunk two"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "  the answer, verbatim \n" {
		t.Errorf("answer = %q, want verbatim model output", got)
	}
	if !strings.Contains(llm.lastPrompt, "what is RAG") {
		t.Error("prompt missing query")
	}
	if !strings.Contains(llm.lastPrompt, "chunk one###chunk two") {
		t.Error("prompt missing joined context")
	}
}

func TestGenerateWithoutModel(t *testing.T) {
	g := NewGenerator(nil, prompts.NewStore(), 1000, nil)

	_, err := g.Generate(context.Background(), "q", resultsWithDocs("c"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("quota exceeded")}
	g := NewGenerator(llm, prompts.NewStore(), 1000, nil)

	_, err := g.Generate(context.Background(), "q", resultsWithDocs("c"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestGenerateBrokenUserTemplate(t *testing.T) {
	store := prompts.NewStore()
	dir := t.TempDir()
	writeTemplate(t, dir, prompts.UserPrompt, "no placeholders here at all")
	if err := store.LoadDir(dir); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(&fakeLLM{reply: "x"}, store, 1000, nil)
	_, err := g.Generate(context.Background(), "q", resultsWithDocs("c"))
	if !errors.Is(err, prompts.ErrMissingPlaceholder) {
		t.Errorf("error = %v, want ErrMissingPlaceholder", err)
	}
}

func TestGenerateEmptyContextStillWorks(t *testing.T) {
	llm := &fakeLLM{reply: "no context answer"}
	g := NewGenerator(llm, prompts.NewStore(), 1000, nil)

	got, err := g.Generate(context.Background(), "q", resultsWithDocs())
	if err != nil {
		t.Fatal(err)
	}
	if got != "no context answer" {
		t.Errorf("answer = %q", got)
	}
}
