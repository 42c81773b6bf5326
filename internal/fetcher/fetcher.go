// Package fetcher downloads RSS/Atom feeds and normalizes their entries.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"myrss_bot/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// ErrorKind classifies a fetch failure.
type ErrorKind string

// Fetch failure classes.
const (
	KindNetwork ErrorKind = "network"
	KindStatus  ErrorKind = "http_status"
	KindParse   ErrorKind = "parse"
)

// Error is a typed fetch failure. Callers report Kind-specific reasons;
// the scheduler treats all kinds the same (log, skip, keep watermark).
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Feed is a fetched feed reduced to the fields the pipeline needs.
type Feed struct {
	Title   string
	Entries []model.Entry
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses the feed at url, preserving feed order.
// Entries are normalized: a missing description becomes an empty string
// and a missing id gets a derived GUID. No retry, no dedup.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "MyRSSBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindStatus, URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &Error{Kind: KindParse, URL: url, Err: err}
	}

	feed := &Feed{Title: parsed.Title}
	for _, item := range parsed.Items {
		feed.Entries = append(feed.Entries, normalizeItem(item, parsed.Title))
	}
	return feed, nil
}

func normalizeItem(item *gofeed.Item, chanTitle string) model.Entry {
	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	var enclosures []string
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			enclosures = append(enclosures, enc.URL)
		}
	}
	return model.Entry{
		GUID:        ItemGUID(item),
		Title:       item.Title,
		Link:        item.Link,
		Description: desc,
		PubDate:     formatPubDate(item),
		ChanTitle:   chanTitle,
		Enclosures:  enclosures,
	}
}

// ItemGUID returns a stable identifier for a feed item. When the feed
// provides no explicit id, a SHA-256 hash over link, title and published
// date is used so the GUID stays stable across repeated fetches.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Link + "|" + item.Title + "|" + item.Published))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func formatPubDate(item *gofeed.Item) string {
	t := item.PublishedParsed
	if t == nil {
		t = item.UpdatedParsed
	}
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
