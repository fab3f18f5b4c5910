// Package scraper crawls a wiki and turns its articles into raw lore records.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/processor"
)

type ScraperConfig struct {
	BaseURL        string
	MaxDepth       int
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	SkipExtensions []string
	Timeout        time.Duration
	UserAgent      string
	OnProgress     func(url string)
}

var defaultIgnorePatterns = []string{
	"Special:", "Talk:", "User:", "File:", "Template:", "Help:",
	"action=", "oldid=", "diff=", "printable=",
}

var defaultSkipExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js", ".pdf", ".zip", ".xml",
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
	logger   *zap.Logger
}

func NewWithConfig(config ScraperConfig, logger *zap.Logger) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = defaultIgnorePatterns
	}
	if config.SkipExtensions == nil {
		config.SkipExtensions = defaultSkipExtensions
	}
	if config.UserAgent == "" {
		config.UserAgent = "lore-fetcher/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   logger,
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	ext := strings.ToLower(path.Ext(parsedURL.Path))
	for _, skip := range s.config.SkipExtensions {
		if ext == skip {
			return false
		}
	}

	// Check ignore patterns
	unescaped, err := url.QueryUnescape(urlStr)
	if err != nil {
		unescaped = urlStr
	}
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(unescaped, pattern) {
			return false
		}
	}

	return true
}

// extractMainContent returns the HTML of the article body, or an empty
// string when the page has none.
func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	selectors := []string{
		".mw-parser-output",
		"#mw-content-text",
		"main",
		"article",
		"#content",
		".content",
	}

	for _, selector := range selectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			if html, err := selected.Html(); err == nil && strings.TrimSpace(selected.Text()) != "" {
				return html
			}
		}
	}

	html, _ := doc.Find("body").Html()
	return html
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{"h1#firstHeading", "h1.page-header__title", "h1"} {
		if t := strings.TrimSpace(doc.Find(selector).First().Text()); t != "" {
			return t
		}
	}
	title := strings.TrimSpace(doc.Find("title").Text())
	// "Altdorf | Warhammer Wiki" -> "Altdorf"
	for _, sep := range []string{" | ", " - "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

// extractCategory reads an explicit lore category meta tag, then the first
// wiki category link that names a known category.
func extractCategory(doc *goquery.Document) string {
	if c, ok := doc.Find(`meta[name="lore:category"]`).Attr("content"); ok && c != "" {
		return c
	}
	var category string
	doc.Find("#catlinks a, .page-header__categories a, .categories a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if c, err := models.ParseCategory(a.Text()); err == nil && !c.IsAny() {
			category = string(c)
			return false
		}
		return true
	})
	return category
}

// Fetch crawls from startURL and returns one record per article found.
// Only a failure of startURL itself is returned as an error; failing
// child pages are logged and skipped.
func (s *Scraper) Fetch(ctx context.Context, startURL string) ([]processor.RawRecord, error) {
	var records []processor.RawRecord
	err := s.fetchRecursive(ctx, normalizeURL(startURL), 0, &records)
	return records, err
}

func (s *Scraper) fetchRecursive(ctx context.Context, urlStr string, depth int, records *[]processor.RawRecord) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}

	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	if title := extractTitle(doc); title != "" {
		if html := s.extractMainContent(doc); html != "" {
			*records = append(*records, processor.RawRecord{
				Title:    title,
				HTML:     html,
				Category: extractCategory(doc),
				URL:      urlStr,
			})
		}
	}

	if depth == s.config.MaxDepth {
		return nil
	}

	base := resp.Request.URL
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}
		href, _ := selection.Attr("href")
		link, err := url.Parse(href)
		if err != nil {
			s.logger.Debug("skipping unparsable link", zap.String("href", href), zap.Error(err))
			return
		}

		next := normalizeURL(base.ResolveReference(link).String())
		if err := s.fetchRecursive(ctx, next, depth+1, records); err != nil {
			s.logger.Warn("failed to fetch page", zap.String("url", next), zap.Error(err))
		}
	})

	return ctx.Err()
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return u.String()
}
