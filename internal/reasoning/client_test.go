package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/pantryman/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// chatContentServer は指定コンテンツを返すチャット補完サーバーを起動する。
func chatContentServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(baseURL string, buf *bytes.Buffer) *Client {
	return NewClient(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "gpt-4o",
	}, newTestLogger(buf))
}

func TestResolve_ParsesFencedResponse(t *testing.T) {
	content := "```json\n{\"matches\": [{\"id\": \"p1\", \"name\": \"Whole Milk\", \"adjusted_quantity\": 2}]}\n```"
	server := chatContentServer(t, content)
	defer server.Close()

	var buf bytes.Buffer
	client := newTestClient(server.URL, &buf)

	matches, err := client.Resolve(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d件, want 1件", len(matches))
	}
	if matches[0].InventoryID != "p1" || matches[0].AdjustedQuantity != 2 {
		t.Errorf("match = %+v", matches[0])
	}
}

// パース不能なコンテンツはエラーではなく空の結果に縮退する
func TestResolve_UnparsableContentDegradesToEmpty(t *testing.T) {
	server := chatContentServer(t, "Sorry, I cannot help with that request.")
	defer server.Close()

	var buf bytes.Buffer
	client := newTestClient(server.URL, &buf)

	matches, err := client.Resolve(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("パース失敗は縮退すべきでエラーにしない: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %+v, want nil", matches)
	}
}

func TestResolve_ErrorStatusReturnsReasoningUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	client := newTestClient(server.URL, &buf)

	_, err := client.Resolve(context.Background(), "prompt")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeReasoningUnavailable {
		t.Fatalf("err = %v, want REASONING_UNAVAILABLE", err)
	}
}

func TestResolve_EmptyChoicesReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	client := newTestClient(server.URL, &buf)

	matches, err := client.Resolve(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %+v, want nil", matches)
	}
}

func TestResolve_SendsChatCompletionRequest(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "{\"matches\": []}"}}]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	client := newTestClient(server.URL, &buf)

	if _, err := client.Resolve(context.Background(), "match these items"); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if captured.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", captured.Model)
	}
	if captured.Temperature != 1 {
		t.Errorf("temperature = %v, want 1", captured.Temperature)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" || captured.Messages[0].Content != "match these items" {
		t.Errorf("messages = %+v", captured.Messages)
	}
}
