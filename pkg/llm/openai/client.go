// Package openai implements the flat message-array backend family on the
// OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/user/inkpilot/pkg/llm"
)

const providerName = "openai"

// Client implements llm.Backend. Every turn, including image turns, is
// flattened into a single ordered message list.
type Client struct {
	config   llm.Config
	client   openai.Client
	resolver llm.ImageResolver
}

// New creates a new OpenAI-compatible client. resolver may be nil, in which
// case image turns degrade to text.
func New(config llm.Config, resolver llm.ImageResolver, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(config.APIKey))}
	if strings.TrimSpace(config.BaseURL) != "" {
		base = append(base, option.WithBaseURL(strings.TrimSpace(config.BaseURL)))
	}
	return &Client{
		config:   config,
		client:   openai.NewClient(append(base, opts...)...),
		resolver: resolver,
	}
}

func (c *Client) Name() string { return providerName }

// Send sends the flattened history plus the current turn.
func (c *Client) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: c.buildMessages(req),
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if c.config.Temperature != 0 {
		params.Temperature = openai.Float(c.config.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.Error{Provider: providerName, Model: req.Model, Err: errors.New("no choices in response")}
	}

	return &llm.Reply{
		Text: resp.Choices[0].Message.Content,
		Raw:  []byte(resp.RawJSON()),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (c *Client) buildMessages(req llm.Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if s := strings.TrimSpace(req.System); s != "" {
		out = append(out, openai.SystemMessage(s))
	}
	for _, t := range req.History {
		if m, ok := c.message(t); ok {
			out = append(out, m)
		}
	}
	if m, ok := c.message(req.Current); ok {
		out = append(out, m)
	}
	return out
}

func (c *Client) message(t llm.Turn) (openai.ChatCompletionMessageParamUnion, bool) {
	switch t.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(t.Text), true
	case llm.RoleAssistant:
		return openai.AssistantMessage(t.Text), true
	case llm.RoleUser:
		if t.ImageRef == "" {
			return openai.UserMessage(t.Text), true
		}
		url, err := c.signedURL(t.ImageRef)
		if err != nil {
			slog.Warn("image resolution failed, sending text only", "provider", providerName, "image_ref", t.ImageRef, "error", err)
			return openai.UserMessage(llm.DegradeImage(t).Text), true
		}
		parts := []openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(t.Text),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
		}
		return openai.UserMessage(parts), true
	default:
		return openai.ChatCompletionMessageParamUnion{}, false
	}
}

func (c *Client) signedURL(ref string) (string, error) {
	if c.resolver == nil {
		return "", errors.New("no image resolver configured")
	}
	return c.resolver.SignedURL(ref)
}

func wrapError(model string, err error) error {
	e := &llm.Error{Provider: providerName, Model: model, Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		e.StatusCode = apiErr.StatusCode
	}
	return fmt.Errorf("chat completion: %w", e)
}
