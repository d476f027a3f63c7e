//go:build integration

package test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/user/inkpilot/internal/api"
	"github.com/user/inkpilot/internal/bus"
	ctxengine "github.com/user/inkpilot/internal/context"
	"github.com/user/inkpilot/internal/creator"
	"github.com/user/inkpilot/internal/edit"
	"github.com/user/inkpilot/internal/gateway"
	"github.com/user/inkpilot/internal/intent"
	"github.com/user/inkpilot/internal/remote"
	"github.com/user/inkpilot/internal/runtime"
	"github.com/user/inkpilot/internal/state"
	"github.com/user/inkpilot/internal/syncer"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
	"github.com/user/inkpilot/pkg/llm/openai"
)

// modelServer speaks the Chat Completions API. Classification calls are
// recognised by their token cap.
func modelServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MaxTokens int `json:"max_tokens"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		content := "```markdown\n# Summary\nShort.\n```"
		if body.MaxTokens == 300 {
			content = `{"destination":"EDITOR","confidence":0.92,"reasoning":"doc edit","editorAction":"REPLACE"}`
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
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

// editorClient follows the SSE stream like the editor would: it answers
// content requests and hands every apply command to applied.
func editorClient(ctx context.Context, t *testing.T, baseURL string, applied chan<- bus.ApplyFullReplace) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/editor/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			handleEditorEvent(t, baseURL, event, data, applied)
		}
	}
}

func handleEditorEvent(t *testing.T, baseURL, event string, data []byte, applied chan<- bus.ApplyFullReplace) {
	switch bus.Kind(event) {
	case bus.KindDocumentContentRequest:
		var env struct {
			Payload bus.DocumentContentRequest `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Errorf("decode content request: %v", err)
			return
		}
		resp, err := send(baseURL+"/api/editor/document-content", map[string]any{
			"requestId":  env.Payload.RequestID,
			"artifactId": "doc-1",
			"markdown":   "# Report\nA long body.",
		}, http.MethodPost)
		if err != nil {
			t.Errorf("respond to content request: %v", err)
			return
		}
		resp.Body.Close()
	case bus.KindApplyFullReplace:
		var env struct {
			Payload bus.ApplyFullReplace `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Errorf("decode apply: %v", err)
			return
		}
		applied <- env.Payload
	}
}

func send(url string, body any, method string) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func postJSON(t *testing.T, url string, body any, method string) *http.Response {
	t.Helper()
	if method == "" {
		method = http.MethodPost
	}
	resp, err := send(url, body, method)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Remote document store: a second instance serving only /documents.
	remoteDocs := state.NewDocumentStore(filepath.Join(dir, "remote"))
	remoteSrv := httptest.NewServer(api.NewServer(api.Deps{Documents: remoteDocs, Token: "secret"}))
	defer remoteSrv.Close()

	model := modelServer(t)
	defer model.Close()

	snaps, err := state.OpenSnapshotStore(filepath.Join(dir, "snapshots.db"), 5)
	if err != nil {
		t.Fatal(err)
	}
	defer snaps.Close()
	conversations := state.NewConversationStore(dir)
	messages := state.NewMessageLog(dir)

	router := llm.NewRouter("gpt-4o")
	router.Register(openai.New(llm.Config{BaseURL: model.URL, APIKey: "k", MaxTokens: 1024}, nil, option.WithMaxRetries(0)), "gpt-")
	engine, err := ctxengine.New("gpt-4o", 32000, 1024)
	if err != nil {
		t.Fatal(err)
	}

	editorBus := bus.New(2 * time.Second)
	modifier := edit.NewModifier(router, engine)
	rt := runtime.New(
		intent.NewClassifier(router, "gpt-4o-mini"),
		creator.New(router, engine, nil, 5),
		modifier, editorBus, conversations, messages, 0,
	)
	gw := gateway.New(conversations, "gpt-4o")
	gw.Queue.SetProcessor(rt.ProcessRun)
	gw.Start(ctx)
	defer gw.Stop()

	syncEngine := syncer.New(snaps, remote.NewClient(nil, remoteSrv.URL, "secret"), syncer.Options{MinSpacing: time.Millisecond})

	srv := httptest.NewServer(api.NewServer(api.Deps{
		Gateway:       gw,
		Modifier:      modifier,
		Sync:          syncEngine,
		Snapshots:     snaps,
		Conversations: conversations,
		Messages:      messages,
		Bus:           editorBus,
		DefaultModel:  "gpt-4o",
	}))
	defer srv.Close()

	applied := make(chan bus.ApplyFullReplace, 1)
	go editorClient(ctx, t, srv.URL, applied)
	deadline := time.Now().Add(2 * time.Second)
	for editorBus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("editor never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 1. The turn lands in the document.
	resp := postJSON(t, srv.URL+"/api/turns", map[string]string{"text": "Summarize this in the doc"}, "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("turn: %d %s", resp.StatusCode, body)
	}
	var turn struct {
		ConversationID types.ConversationID  `json:"conversation_id"`
		Result         types.ResultEnvelope `json:"result"`
	}
	if err := json.Unmarshal(body, &turn); err != nil {
		t.Fatal(err)
	}
	if turn.Result.Kind != types.KindFullReplace || turn.Result.Markdown != "# Summary\nShort." {
		t.Fatalf("unexpected result %+v", turn.Result)
	}

	select {
	case cmd := <-applied:
		if cmd.ArtifactID != "doc-1" || cmd.Markdown != "# Summary\nShort." {
			t.Errorf("unexpected apply command %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("editor never received the replacement")
	}

	conv, err := conversations.Get(ctx, turn.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.ArtifactID != "doc-1" {
		t.Errorf("expected doc-1 linked, got %q", conv.ArtifactID)
	}

	// 2. The editor saves the new content and it reaches the remote.
	resp = postJSON(t, srv.URL+"/api/artifacts/doc-1/content", map[string]any{
		"title":    "Summary",
		"owner_id": "u1",
		"content":  []map[string]string{{"type": "heading", "text": "Summary"}},
	}, http.MethodPut)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/artifacts/doc-1/sync", nil, "")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync: %d %s", resp.StatusCode, body)
	}

	doc, err := remoteDocs.Get(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Summary" || doc.OwnerID != "u1" {
		t.Errorf("unexpected remote document %+v", doc)
	}

	pending, err := snaps.PendingArtifacts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected nothing pending after sync, got %v", pending)
	}
}
