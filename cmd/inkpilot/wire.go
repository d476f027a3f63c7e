package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/inkpilot/internal/config"
	ctxengine "github.com/user/inkpilot/internal/context"
	"github.com/user/inkpilot/internal/creator"
	"github.com/user/inkpilot/internal/media"
	"github.com/user/inkpilot/internal/remote"
	"github.com/user/inkpilot/internal/search"
	"github.com/user/inkpilot/internal/state"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
	"github.com/user/inkpilot/pkg/llm/anthropic"
	"github.com/user/inkpilot/pkg/llm/openai"
)

// Model id prefixes served by each backend family.
var (
	openAIPrefixes    = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}
	anthropicPrefixes = []string{"claude-"}
)

// newResolver signs uploads against the configured storage endpoint,
// falling back to this process's own /media route.
func newResolver(cfg *config.Config) *media.Resolver {
	base := cfg.Storage.BaseURL
	if base == "" {
		base = "http://" + cfg.HTTP.Listen + "/media"
	}
	key := cfg.Storage.SigningKey
	if key == "" {
		key = uuid.NewString()
		slog.Warn("storage.signing_key not set, signed urls will not survive a restart")
	}
	return media.NewResolver(base, key, time.Duration(cfg.Storage.URLTTLSeconds)*time.Second)
}

// newRouter registers every backend family that has credentials.
func newRouter(cfg *config.Config, resolver llm.ImageResolver) *llm.Router {
	router := llm.NewRouter(cfg.LLM.DefaultModel)
	common := llm.Config{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}

	if cfg.LLM.OpenAI.APIKey != "" {
		c := common
		c.BaseURL, c.APIKey = cfg.LLM.OpenAI.BaseURL, cfg.LLM.OpenAI.APIKey
		router.Register(openai.New(c, resolver), openAIPrefixes...)
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		c := common
		c.BaseURL, c.APIKey = cfg.LLM.Anthropic.BaseURL, cfg.LLM.Anthropic.APIKey
		router.Register(anthropic.New(c, resolver), anthropicPrefixes...)
	}
	return router
}

func newContextEngine(cfg *config.Config) (*ctxengine.Engine, error) {
	engine, err := ctxengine.New(cfg.LLM.DefaultModel, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return nil, fmt.Errorf("create context engine: %w", err)
	}
	return engine, nil
}

// newSearcher returns nil when no Brave key is configured so the creator
// degrades to a system note.
func newSearcher(cfg *config.Config) creator.Searcher {
	client := search.NewClient(cfg.Brave.APIKey, cfg.Search.ResultLimit)
	if !client.Enabled() {
		return nil
	}
	return client
}

func openSnapshots(cfg *config.Config) (*state.SnapshotStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	snaps, err := state.OpenSnapshotStore(filepath.Join(cfg.DataDir, "snapshots.db"), cfg.Sync.SnapshotCap)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return snaps, nil
}

// newRemote picks the document store the sync engine pushes to.
func newRemote(cfg *config.Config, local *state.DocumentStore) (types.DocumentStore, error) {
	switch strings.ToLower(cfg.Sync.Remote) {
	case "", config.RemoteLocal:
		return local, nil
	case config.RemoteHTTP:
		if cfg.Sync.RemoteURL == "" {
			return nil, fmt.Errorf("sync.remote_url is required for remote %q", config.RemoteHTTP)
		}
		return remote.NewClient(&http.Client{Timeout: 30 * time.Second}, cfg.Sync.RemoteURL, cfg.Sync.RemoteToken), nil
	default:
		return nil, fmt.Errorf("unknown sync remote: %s", cfg.Sync.Remote)
	}
}
