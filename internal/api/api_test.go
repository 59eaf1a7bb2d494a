package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/multiai-gateway/internal/breaker"
	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/fanout"
	"github.com/eternisai/multiai-gateway/internal/inspect"
	"github.com/eternisai/multiai-gateway/internal/ledger"
	"github.com/eternisai/multiai-gateway/internal/upstream"
)

// fakeAdapter serves a fixed, in-memory model list with no network call.
type fakeAdapter struct {
	src    catalog.Source
	models []catalog.ModelDescriptor
}

func (a *fakeAdapter) Source() catalog.Source { return a.src }
func (a *fakeAdapter) Fetch(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	return a.models, nil
}

// fakeStreamer implements fanout.Streamer so tests never open real sockets.
type fakeStreamer struct {
	content string
	failErr error
}

func (f *fakeStreamer) Stream(ctx context.Context, req upstream.Request) {
	if f.failErr != nil {
		req.OnError(f.failErr)
		return
	}
	if req.OnChunk != nil {
		req.OnChunk(f.content)
	}
	req.OnComplete(upstream.Result{Content: f.content, TotalMs: 1, TTFTMs: 1})
}

func newTestServer(t *testing.T, streamer fanout.Streamer) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := catalog.New(time.Minute, nil, &fakeAdapter{
		src: catalog.SourceOllama,
		models: []catalog.ModelDescriptor{
			{ID: "ollama/llama3", DisplayName: "llama3", Source: catalog.SourceOllama, Capabilities: []string{"chat"}, IsFree: true},
		},
	})
	router := fanout.New(streamer, 3)
	b := breaker.New(breaker.DefaultConfig(), nil)
	l, err := ledger.New(ledger.DefaultConfig(), ledger.NewMemoryStore(), nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	inspector := inspect.New(10, true)
	creds := upstream.NewCredentials()

	s := New(nil, cat, router, b, l, inspector, creds)
	return s, s.NewEngine()
}

func TestHealth_ReturnsOK(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestListModels_ReturnsOpenAIShape(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Object != "list" || len(body.Data) != 1 || body.Data[0].ID != "ollama/llama3" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestChatCompletions_NonStreamingSuccess(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hello there"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	payload, _ := json.Marshal(chatCompletionRequest{
		Model:    "ollama/llama3",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}

	var body chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Choices) != 1 || body.Choices[0].Message.Content != "hello there" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestChatCompletions_UnknownModelIsBadRequest(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	payload, _ := json.Marshal(chatCompletionRequest{
		Model:    "not-a-real-model",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestChatCompletions_InvalidRoleIsBadRequest(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	payload, _ := json.Marshal(chatCompletionRequest{
		Model:    "ollama/llama3",
		Messages: []chatMessage{{Role: "developer", Content: "hi"}},
	})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestChatCompletions_EmptyContentIsBadRequest(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	payload, _ := json.Marshal(chatCompletionRequest{
		Model:    "ollama/llama3",
		Messages: []chatMessage{{Role: "user", Content: "   "}},
	})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestChatCompletions_StreamingWritesSSEAndDone(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "chunk"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	payload, _ := json.Marshal(chatCompletionRequest{
		Model:    "ollama/llama3",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
		Stream:   true,
	})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	body := buf.String()
	if body == "" {
		t.Fatal("expected non-empty SSE body")
	}
	if want := "data: [DONE]"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("expected body to contain %q, got %q", want, body)
	}
}

func TestSettings_GetAndPutRoundTrip(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	payload, _ := json.Marshal(putSettingsRequest{OpenRouterAPIKey: strPtr("sk-test")})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["openrouter_configured"] {
		t.Fatal("expected openrouter_configured=true after setting key")
	}
}

func TestSpending_PostUpdatesCap(t *testing.T) {
	_, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	newCap := 1.23
	payload, _ := json.Marshal(postSpendingRequest{DailyCap: &newCap})
	resp, err := http.Post(srv.URL+"/api/settings/spending", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		DailyCap float64 `json:"daily_cap"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DailyCap != newCap {
		t.Fatalf("want daily_cap=%v, got %v", newCap, body.DailyCap)
	}
}

func TestInspect_ExportAndClear(t *testing.T) {
	s, engine := newTestServer(t, &fakeStreamer{content: "hi"})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	s.inspector.Record(&inspect.Transaction{ID: "tx-1", RequestMethod: "POST"})

	resp, err := http.Get(srv.URL + "/v1/inspect")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/inspect", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", delResp.StatusCode)
	}
	if len(s.inspector.List()) != 0 {
		t.Fatal("expected inspector buffer to be empty after DELETE")
	}
}

func strPtr(s string) *string { return &s }
