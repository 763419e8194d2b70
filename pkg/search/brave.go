package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mikeboe/raggle/pkg/models"
)

// ErrUnavailable means the search provider could not deliver any results:
// missing credentials, a non-2xx response, or an empty result set. The
// pipeline treats this as fatal since there is nothing to answer from.
var ErrUnavailable = errors.New("web search unavailable")

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveClient queries the Brave web search API.
type BraveClient struct {
	APIKey      string
	Endpoint    string
	ResultCount int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func NewBraveClient(apiKey string, resultCount int, logger *slog.Logger) *BraveClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &BraveClient{
		APIKey:      apiKey,
		Endpoint:    defaultEndpoint,
		ResultCount: resultCount,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Logger:      logger,
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns one WebDocument per result, keyed by URL. Later results
// with the same URL overwrite earlier ones.
func (c *BraveClient) Search(ctx context.Context, query string) (map[string]*models.WebDocument, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("SEARCH_API_KEY is not set: %w", ErrUnavailable)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("source", "web")
	params.Set("count", strconv.Itoa(c.ResultCount))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Logger.Error("Search provider returned error", "status", resp.Status)
		return nil, fmt.Errorf("search provider returned %s: %w", resp.Status, ErrUnavailable)
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	docs := make(map[string]*models.WebDocument)
	for _, r := range parsed.Web.Results {
		doc := &models.WebDocument{
			Title:       r.Title,
			Description: r.Description,
			URL:         r.URL,
		}
		if err := doc.Validate(); err != nil {
			c.Logger.Warn("Skipping malformed search result", "error", err)
			continue
		}
		docs[doc.URL] = doc
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("search returned no results: %w", ErrUnavailable)
	}

	c.Logger.Info("Web search completed", "query", query, "results", len(docs))
	return docs, nil
}
