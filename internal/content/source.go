package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/sentimentiq/backend/internal/domain"
)

// ErrNoSnapshot is returned before the shell has pushed any DOM snapshot.
var ErrNoSnapshot = errors.New("no page snapshot available")

// SnapshotSource serves the latest DOM snapshot pushed by the extension shell.
type SnapshotSource struct {
	mu   sync.RWMutex
	url  string
	html string
	set  bool
}

// NewSnapshotSource creates an empty source.
func NewSnapshotSource() *SnapshotSource {
	return &SnapshotSource{}
}

// Update replaces the snapshot.
func (s *SnapshotSource) Update(url, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url, s.html, s.set = url, html, true
}

// Snapshot returns the latest snapshot.
func (s *SnapshotSource) Snapshot(ctx context.Context) (*domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, ErrNoSnapshot
	}
	return &domain.Page{URL: s.url, HTML: strings.NewReader(s.html)}, nil
}

// HTTPSource fetches a live page on every snapshot.
type HTTPSource struct {
	url    string
	client *resty.Client
}

// NewHTTPSource creates a source for url backed by a retrying HTTP client.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; SentimentIQ/1.0)").
		SetHeader("Accept", "text/html,application/xhtml+xml")

	return &HTTPSource{url: url, client: client}
}

// Snapshot fetches the page. The returned URL is the final one after redirects.
func (s *HTTPSource) Snapshot(ctx context.Context) (*domain.Page, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: status %d", s.url, resp.StatusCode())
	}

	final := s.url
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}
	return &domain.Page{URL: final, HTML: bytes.NewReader(resp.Body())}, nil
}
