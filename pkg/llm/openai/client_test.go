package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/user/inkpilot/pkg/llm"
)

type fakeResolver struct {
	url string
	err error
}

func (f *fakeResolver) SignedURL(ref string) (string, error) { return f.url, f.err }

func (f *fakeResolver) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	return nil, "", errors.New("not used")
}

func completionServer(t *testing.T, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or invalid auth header")
		}
		body, _ := io.ReadAll(r.Body)
		if capture != nil {
			json.Unmarshal(body, capture)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "test response"},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestOpenAIClient(t *testing.T) {
	server := completionServer(t, nil)
	defer server.Close()

	client := New(llm.Config{BaseURL: server.URL, APIKey: "test-key"}, nil, option.WithMaxRetries(0))
	reply, err := client.Send(context.Background(), llm.Request{
		Model:   "gpt-4o",
		Current: llm.Turn{Role: llm.RoleUser, Text: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "test response" {
		t.Errorf("expected 'test response', got %s", reply.Text)
	}
	if reply.Usage.InputTokens != 10 || reply.Usage.OutputTokens != 5 || reply.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", reply.Usage)
	}
	if len(reply.Raw) == 0 {
		t.Error("expected raw response body")
	}
}

func TestOpenAIClientFlattensHistory(t *testing.T) {
	var got map[string]any
	server := completionServer(t, &got)
	defer server.Close()

	client := New(llm.Config{BaseURL: server.URL, APIKey: "test-key"}, nil, option.WithMaxRetries(0))
	_, err := client.Send(context.Background(), llm.Request{
		Model:       "gpt-4o",
		System:      "be brief",
		Temperature: llm.Temperature(0.1),
		MaxTokens:   256,
		History: []llm.Turn{
			{Role: llm.RoleUser, Text: "hi"},
			{Role: llm.RoleAssistant, Text: "hello"},
			{Role: llm.RoleSystem, Text: "[Web search results] none"},
		},
		Current: llm.Turn{Role: llm.RoleUser, Text: "again"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	roles := []string{"system", "user", "assistant", "system", "user"}
	for i, m := range msgs {
		if role := m.(map[string]any)["role"]; role != roles[i] {
			t.Errorf("message %d: expected role %s, got %v", i, roles[i], role)
		}
	}
	if got["temperature"] != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", got["temperature"])
	}
	if got["max_tokens"] != float64(256) {
		t.Errorf("expected max_tokens 256, got %v", got["max_tokens"])
	}
}

func TestOpenAIClientImageTurn(t *testing.T) {
	var got map[string]any
	server := completionServer(t, &got)
	defer server.Close()

	resolver := &fakeResolver{url: "https://storage.example/img.png?sig=abc"}
	client := New(llm.Config{BaseURL: server.URL, APIKey: "test-key"}, resolver, option.WithMaxRetries(0))
	_, err := client.Send(context.Background(), llm.Request{
		Model:   "gpt-4o",
		Current: llm.Turn{Role: llm.RoleUser, Text: "describe", ImageRef: "uploads/img.png"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := got["messages"].([]any)
	content, ok := msgs[0].(map[string]any)["content"].([]any)
	if !ok || len(content) != 2 {
		t.Fatalf("expected dual-part content, got %v", msgs[0])
	}
	image := content[1].(map[string]any)
	if image["type"] != "image_url" {
		t.Errorf("expected image_url part, got %v", image["type"])
	}
	if image["image_url"].(map[string]any)["url"] != resolver.url {
		t.Errorf("expected signed url, got %v", image["image_url"])
	}
}

func TestOpenAIClientImageResolutionDegrades(t *testing.T) {
	var got map[string]any
	server := completionServer(t, &got)
	defer server.Close()

	client := New(llm.Config{BaseURL: server.URL, APIKey: "test-key"}, &fakeResolver{err: errors.New("expired")}, option.WithMaxRetries(0))
	_, err := client.Send(context.Background(), llm.Request{
		Model:   "gpt-4o",
		Current: llm.Turn{Role: llm.RoleUser, Text: "describe", ImageRef: "uploads/img.png"},
	})
	if err != nil {
		t.Fatalf("image failure should not abort the call: %v", err)
	}
	msgs := got["messages"].([]any)
	content, ok := msgs[0].(map[string]any)["content"].(string)
	if !ok || !strings.Contains(content, llm.ImageUnavailableNote) {
		t.Errorf("expected text-only turn with note, got %v", msgs[0])
	}
}

func TestOpenAIClientTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := New(llm.Config{BaseURL: server.URL, APIKey: "test-key"}, nil, option.WithMaxRetries(0))
	_, err := client.Send(context.Background(), llm.Request{
		Model:   "gpt-4o",
		Current: llm.Turn{Role: llm.RoleUser, Text: "hello"},
	})
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *llm.Error, got %v", err)
	}
	if llmErr.StatusCode != http.StatusUnauthorized || llmErr.Provider != "openai" {
		t.Errorf("unexpected error fields: %+v", llmErr)
	}
}
