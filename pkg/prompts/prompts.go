package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownTemplate is returned when a template name is not in the store.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// ErrMissingPlaceholder is returned when a template lacks a placeholder
// the caller needs to fill. Rendering with a half-filled template would
// silently feed the model a broken prompt, so this is surfaced instead.
var ErrMissingPlaceholder = errors.New("missing placeholder in prompt template")

const (
	SystemPrompt = "system_prompt"
	UserPrompt   = "user_prompt"
	QueryRewrite = "query_rewrite"
)

var defaults = map[string]string{
	SystemPrompt: `You are a careful research assistant. Answer using only the provided context.
If the context does not contain the answer, say so instead of guessing.
`,
	UserPrompt: `Answer the following question using the context below. The context consists of web page excerpts separated by "###".

Question: {query}

Context:
{context}
`,
	QueryRewrite: `Rewrite the following question as a concise web search query. Return only the query text.

Question: {query}
`,
}

// Store is a named key-value collection of prompt templates with
// {placeholder} substitution. Built-in defaults can be overridden by
// plain-text files loaded from a directory.
type Store struct {
	templates map[string]string
}

func NewStore() *Store {
	templates := make(map[string]string, len(defaults))
	for name, text := range defaults {
		templates[name] = text
	}
	return &Store{templates: templates}
}

// LoadDir overrides templates from *.txt files in dir; the file name
// without extension is the template name.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read prompt directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read prompt file %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		s.templates[name] = string(data)
	}
	return nil
}

// Get returns the raw template text.
func (s *Store) Get(name string) (string, error) {
	text, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrUnknownTemplate)
	}
	return text, nil
}

// Render substitutes every {key} from vars into the named template. Each
// provided key must appear in the template at least once.
func (s *Store) Render(name string, vars map[string]string) (string, error) {
	text, err := s.Get(name)
	if err != nil {
		return "", err
	}
	for key, value := range vars {
		placeholder := "{" + key + "}"
		if !strings.Contains(text, placeholder) {
			return "", fmt.Errorf("template %q has no %s: %w", name, placeholder, ErrMissingPlaceholder)
		}
		text = strings.ReplaceAll(text, placeholder, value)
	}
	return text, nil
}
