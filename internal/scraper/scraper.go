// Package scraper fetches a job posting and reduces it to plain text.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// BlockedPrefix marks messages of scrape-blocked failures.
const BlockedPrefix = "SCRAPE_BLOCKED: "

const (
	maxContentChars = 10_000
	minUsefulChars  = 200
	blockedPageMax  = 1000

	directTimeout = 10 * time.Second
	readerTimeout = 30 * time.Second

	userAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultReaderURL = "https://r.jina.ai/"
)

var (
	ErrInvalidURL    = errors.New("invalid URL")
	ErrScrapeBlocked = errors.New("scrape blocked")
)

// BlockedError is returned when the fetched page is a bot wall.
type BlockedError struct{}

func (e *BlockedError) Error() string {
	return BlockedPrefix + "This site blocks automated access. Please copy and paste the job description text instead."
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrScrapeBlocked
}

// UserMessage is the error text without the condition prefix.
func (e *BlockedError) UserMessage() string {
	return strings.TrimPrefix(e.Error(), BlockedPrefix)
}

var blockMarkers = []string{
	"access denied",
	"you don't have permission",
	"forbidden",
	"please enable javascript",
	"checking your browser",
	"ray id",
	"cloudflare",
	"captcha",
}

type Scraper struct {
	directClient *http.Client
	readerClient *http.Client
	readerURL    string
	logger       *zap.Logger
}

func New(logger *zap.Logger) *Scraper {
	return &Scraper{
		directClient: &http.Client{Timeout: directTimeout},
		readerClient: &http.Client{Timeout: readerTimeout},
		readerURL:    defaultReaderURL,
		logger:       logger,
	}
}

// Scrape returns the posting text at rawURL. A direct fetch is tried first;
// pages it cannot read fall back to the reader service.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}

	text, err := s.fetchDirect(ctx, u.String())
	switch {
	case err == nil && len(text) > minUsefulChars:
		if err := validateContent(text); err != nil {
			return "", err
		}
		return text, nil
	case err != nil:
		s.logger.Warn("direct fetch failed, falling back to reader", zap.String("url", u.String()), zap.Error(err))
	}

	text, err = s.fetchViaReader(ctx, u.String())
	if err != nil {
		return "", err
	}
	if err := validateContent(text); err != nil {
		return "", err
	}
	return text, nil
}

func validateContent(text string) error {
	if len(text) >= blockedPageMax {
		return nil
	}
	lower := strings.ToLower(text)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return &BlockedError{}
		}
	}
	return nil
}

func (s *Scraper) fetchDirect(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.directClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return truncate(extractListing(doc)), nil
}

func (s *Scraper) fetchViaReader(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.readerURL+target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Return-Format", "text")

	resp, err := s.readerClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reader request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*maxContentChars))
	if err != nil {
		return "", err
	}
	return truncate(string(body)), nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxContentChars {
		return string(r[:maxContentChars])
	}
	return s
}
