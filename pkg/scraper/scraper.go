package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikeboe/raggle/pkg/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"

// minLineLength filters navigation crumbs, cookie banners and similar
// noise; only lines longer than this survive extraction.
const minLineLength = 30

// Scraper fetches result pages and extracts their readable text. Fetches
// are independent of each other, so they run on a bounded worker pool;
// the document map is keyed by URL and completion order does not matter.
type Scraper struct {
	client  *http.Client
	workers int
	logger  *slog.Logger
}

func New(workers int, timeout time.Duration, logger *slog.Logger) *Scraper {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:  &http.Client{Timeout: timeout},
		workers: workers,
		logger:  logger,
	}
}

// ScrapeAll fills ScrapedText for every document in place. A failed fetch
// or parse leaves the text empty and the document retained; the cause is
// logged and the run continues.
func (s *Scraper) ScrapeAll(ctx context.Context, docs map[string]*models.WebDocument) {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.workers)

	for _, doc := range docs {
		wg.Add(1)
		go func(doc *models.WebDocument) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			text, err := s.scrape(ctx, doc.URL)
			if err != nil {
				s.logger.Warn("Failed to scrape page, keeping empty text", "url", doc.URL, "error", err)
				return
			}
			doc.ScrapedText = text
		}(doc)
	}
	wg.Wait()
}

func (s *Scraper) scrape(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch returned %s", resp.Status)
	}

	return ExtractText(resp.Body)
}

// ExtractText pulls the readable text out of an HTML page: the <main>
// region if present, else <article>, else the document body, with
// script/style stripped, short lines dropped and non-ASCII removed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style").Remove()

	content := doc.Find("main")
	if content.Length() == 0 {
		content = doc.Find("article")
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	if content.Length() == 0 {
		return "", nil
	}

	var lines []string
	collectLines(content.First(), &lines)

	var kept []string
	for _, line := range lines {
		if len(line) > minLineLength {
			kept = append(kept, stripNonASCII(line))
		}
	}
	return strings.Join(kept, "\n"), nil
}

// collectLines walks the DOM and emits one line per text node, preserving
// enough structure for the line-length filter to be meaningful.
func collectLines(sel *goquery.Selection, lines *[]string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			if t := strings.TrimSpace(s.Text()); t != "" {
				*lines = append(*lines, t)
			}
			return
		}
		collectLines(s, lines)
	})
}

func stripNonASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}
