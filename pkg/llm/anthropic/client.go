// Package anthropic implements the session-style backend family on the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/user/inkpilot/pkg/llm"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

// Client implements llm.Backend. History is replayed into a session and only
// the current turn is sent as the new message.
type Client struct {
	config   llm.Config
	client   anthropic.Client
	resolver llm.ImageResolver
}

// New creates a new Anthropic client. resolver may be nil, in which case
// image turns degrade to text.
func New(config llm.Config, resolver llm.ImageResolver, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(config.APIKey))}
	if strings.TrimSpace(config.BaseURL) != "" {
		base = append(base, option.WithBaseURL(strings.TrimSpace(config.BaseURL)))
	}
	return &Client{
		config:   config,
		client:   anthropic.NewClient(append(base, opts...)...),
		resolver: resolver,
	}
}

func (c *Client) Name() string { return providerName }

// Send replays req.History as a session and sends req.Current. With no
// history a single-shot generation is made instead.
func (c *Client) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	current := c.blocks(ctx, req.Current)
	if len(req.History) == 0 {
		return c.generate(ctx, req, req.System, current)
	}
	s := c.newSession(ctx, req.System, req.History)
	return s.send(ctx, req, current)
}

// session is a replayed conversation ready to accept the next user turn.
type session struct {
	client   *Client
	system   []string
	messages []anthropic.MessageParam
	lastRole string
}

func (c *Client) newSession(ctx context.Context, system string, history []llm.Turn) *session {
	s := &session{client: c}
	if strings.TrimSpace(system) != "" {
		s.system = append(s.system, strings.TrimSpace(system))
	}
	started := false
	for _, t := range history {
		if t.Role == llm.RoleSystem {
			s.system = append(s.system, t.Text)
			continue
		}
		// Sessions must open with a user turn.
		if !started && t.Role != llm.RoleUser {
			continue
		}
		started = true
		s.append(t.Role, c.blocks(ctx, t))
	}
	return s
}

// append adds blocks under role, merging into the previous message when the
// role repeats so that turns alternate.
func (s *session) append(role string, blocks []anthropic.ContentBlockParamUnion) {
	if len(blocks) == 0 {
		return
	}
	if role == s.lastRole && len(s.messages) > 0 {
		last := &s.messages[len(s.messages)-1]
		last.Content = append(last.Content, blocks...)
		return
	}
	if role == llm.RoleAssistant {
		s.messages = append(s.messages, anthropic.NewAssistantMessage(blocks...))
	} else {
		s.messages = append(s.messages, anthropic.NewUserMessage(blocks...))
	}
	s.lastRole = role
}

func (s *session) send(ctx context.Context, req llm.Request, current []anthropic.ContentBlockParamUnion) (*llm.Reply, error) {
	s.append(llm.RoleUser, current)
	return s.client.call(ctx, req, strings.Join(s.system, "\n\n"), s.messages)
}

func (c *Client) generate(ctx context.Context, req llm.Request, system string, current []anthropic.ContentBlockParamUnion) (*llm.Reply, error) {
	return c.call(ctx, req, strings.TrimSpace(system), []anthropic.MessageParam{anthropic.NewUserMessage(current...)})
}

func (c *Client) call(ctx context.Context, req llm.Request, system string, messages []anthropic.MessageParam) (*llm.Reply, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else if c.config.Temperature != 0 {
		params.Temperature = anthropic.Float(c.config.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(req.Model, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return &llm.Reply{
		Text: text.String(),
		Raw:  json.RawMessage(msg.RawJSON()),
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (c *Client) blocks(ctx context.Context, t llm.Turn) []anthropic.ContentBlockParamUnion {
	if t.ImageRef == "" {
		if t.Text == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(t.Text)}
	}

	data, mediaType, err := c.fetch(ctx, t.ImageRef)
	if err != nil {
		slog.Warn("image resolution failed, sending text only", "provider", providerName, "image_ref", t.ImageRef, "error", err)
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(llm.DegradeImage(t).Text)}
	}
	out := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)),
	}
	if t.Text != "" {
		out = append(out, anthropic.NewTextBlock(t.Text))
	}
	return out
}

func (c *Client) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if c.resolver == nil {
		return nil, "", errors.New("no image resolver configured")
	}
	return c.resolver.Fetch(ctx, ref)
}

func wrapError(model string, err error) error {
	e := &llm.Error{Provider: providerName, Model: model, Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		e.StatusCode = apiErr.StatusCode
	}
	return fmt.Errorf("create message: %w", e)
}
