// Package remote talks to the remote document store over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/inkpilot/internal/types"
)

var (
	ErrUnauthorized = errors.New("remote unauthorized")
	ErrNotFound     = errors.New("remote document not found")
	ErrConflict     = errors.New("remote document already exists")
)

// Client implements types.DocumentStore against the /documents endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type documentBody struct {
	ID      types.ArtifactID `json:"id,omitempty"`
	OwnerID string           `json:"owner_id,omitempty"`
	Title   string           `json:"title,omitempty"`
	Content json.RawMessage  `json:"content"`
}

type errorBody struct {
	Error string `json:"error"`
}

var _ types.DocumentStore = (*Client)(nil)

// NewClient returns a client for baseURL. A nil httpClient gets a 30s timeout.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

func documentPath(id types.ArtifactID) string {
	return "/documents/" + url.PathEscape(string(id))
}

// Exists reports whether the remote store has a document with id.
func (c *Client) Exists(ctx context.Context, id types.ArtifactID) (bool, error) {
	err := c.do(ctx, http.MethodHead, documentPath(id), nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", id, err)
	}
	return true, nil
}

// Create stores a new document under the caller-supplied id.
func (c *Client) Create(ctx context.Context, id types.ArtifactID, ownerID, title string, content json.RawMessage) error {
	body := documentBody{ID: id, OwnerID: ownerID, Title: title, Content: content}
	if err := c.do(ctx, http.MethodPost, "/documents", body); err != nil {
		return fmt.Errorf("create document %s: %w", id, err)
	}
	return nil
}

// Update overwrites the content of an existing document.
func (c *Client) Update(ctx context.Context, id types.ArtifactID, content json.RawMessage, ownerID, title string) error {
	body := documentBody{OwnerID: ownerID, Title: title, Content: content}
	if err := c.do(ctx, http.MethodPut, documentPath(id), body); err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		token := c.token
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		if strings.TrimSpace(eb.Error) != "" {
			return fmt.Errorf("remote %d: %s", resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("remote status %d", resp.StatusCode)
	}
}
