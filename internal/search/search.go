// Package search is the web search capability used to augment generation.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/inkpilot/internal/gateway"
)

const (
	defaultLimit  = 5
	maxLimit      = 20
	answerExcerpt = 4000
	ResultsMarker = "[Web search results]"
)

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Answer is a single best answer with the results it was drawn from.
type Answer struct {
	Answer    string       `json:"answer"`
	Citations []ResultItem `json:"citations"`
}

// Client searches the web via the Brave Search API and reads result pages.
type Client struct {
	apiKey  string
	baseURL string
	reader  *Reader
	retry   *gateway.RetryPolicy
	limit   int
}

// NewClient creates a search client. limit is the default result count.
func NewClient(apiKey string, limit int) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: braveEndpoint,
		reader:  NewReader(),
		retry:   gateway.DefaultRetryPolicy(),
		limit:   limit,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

// Search returns up to limit results for query. Transient failures are retried.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]ResultItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	if c.apiKey == "" {
		return nil, errors.New("missing web search api key")
	}
	if limit <= 0 {
		limit = c.limit
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var items []ResultItem
	err := c.retry.Execute(ctx, func() error {
		var err error
		items, err = c.brave(ctx, query, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return items, nil
}

// Answer searches and reads the top result as markdown. When the page cannot
// be read the top snippet is used instead.
func (c *Client) Answer(ctx context.Context, query string) (*Answer, error) {
	items, err := c.Search(ctx, query, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &Answer{}, nil
	}

	text, err := c.reader.Read(ctx, items[0].URL)
	if err != nil {
		text = items[0].Snippet
	}
	if len(text) > answerExcerpt {
		text = text[:answerExcerpt] + "\n\n[Content truncated]"
	}
	return &Answer{Answer: strings.TrimSpace(text), Citations: items}, nil
}

// Format renders results as the body of an injected system turn.
func Format(query string, items []ResultItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s for %q:\n\n", ResultsMarker, query)
	if len(items) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}
	for i, r := range items {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	sb.WriteString("Cite sources by URL when you use them.")
	return sb.String()
}

// FormatAnswer renders an Answer: the citations as in Format, followed by
// the excerpt read from the top result.
func FormatAnswer(query string, a *Answer) string {
	out := Format(query, a.Citations)
	if a.Answer == "" || len(a.Citations) == 0 {
		return out
	}
	return out + "\n\nExcerpt from " + a.Citations[0].URL + ":\n\n" + a.Answer
}
