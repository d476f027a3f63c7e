package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Backend defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as history shape,
// image encoding, authentication, and response parsing.
type Backend interface {
	// Name identifies the backend family, e.g. "openai".
	Name() string

	// Send answers req.Current given req.History.
	Send(ctx context.Context, req Request) (*Reply, error)
}

// Config holds common configuration for LLM backends.
type Config struct {
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// ImageResolver turns an opaque storage reference into something a backend
// can transmit.
type ImageResolver interface {
	// SignedURL returns a short-lived fetchable URL for ref.
	SignedURL(ref string) (string, error)
	// Fetch downloads ref and returns its bytes and media type.
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// ImageUnavailableNote is appended to a turn whose image could not be resolved.
const ImageUnavailableNote = "[System note: an image was attached to this message but could not be loaded.]"

// DegradeImage returns t as a text-only turn annotated with ImageUnavailableNote.
func DegradeImage(t Turn) Turn {
	text := strings.TrimSpace(t.Text)
	if text != "" {
		text += "\n\n"
	}
	return Turn{Role: t.Role, Text: text + ImageUnavailableNote}
}

// Error is returned for network and auth failures of a backend call.
type Error struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoBackend is returned by Router when no backend serves a model.
var ErrNoBackend = errors.New("no backend for model")

// Router dispatches requests to a backend chosen by model id prefix.
type Router struct {
	mu           sync.RWMutex
	routes       []route
	defaultModel string
}

type route struct {
	prefix  string
	backend Backend
}

// NewRouter creates a router. Requests with an empty or unrouted model use
// defaultModel.
func NewRouter(defaultModel string) *Router {
	return &Router{defaultModel: defaultModel}
}

// Register adds a backend for the given model id prefixes.
func (r *Router) Register(b Backend, prefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prefixes {
		r.routes = append(r.routes, route{prefix: p, backend: b})
	}
}

// DefaultModel returns the model used when a request names none.
func (r *Router) DefaultModel() string { return r.defaultModel }

// Resolve returns the backend and effective model id for model.
func (r *Router) Resolve(model string) (Backend, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if model != "" {
		if b := r.match(model); b != nil {
			return b, model, nil
		}
	}
	if b := r.match(r.defaultModel); b != nil {
		return b, r.defaultModel, nil
	}
	return nil, "", fmt.Errorf("%w: %q", ErrNoBackend, model)
}

func (r *Router) match(model string) Backend {
	var best Backend
	bestLen := -1
	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) && len(rt.prefix) > bestLen {
			best, bestLen = rt.backend, len(rt.prefix)
		}
	}
	return best
}

// Send resolves req.Model and forwards to the chosen backend.
func (r *Router) Send(ctx context.Context, req Request) (*Reply, error) {
	b, model, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = model
	return b.Send(ctx, req)
}
