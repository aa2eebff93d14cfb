package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efebarandurmaz/hrrag/internal/llm"
)

func TestNew_SetsDefaults(t *testing.T) {
	client := New("test-key", "test-model", "")
	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default baseURL %q, got %q", defaultBaseURL, client.baseURL)
	}
	if client.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", client.Name())
	}
}

func TestComplete_RequestShape(t *testing.T) {
	var headers http.Header
	var body map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "Fifteen days "}, {"type": "text", "text": "(a1b2c3d4e5)"}},
			"model":   "claude-test",
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer server.Close()

	client := New("test-api-key", "claude-test", server.URL)
	resp, err := client.Complete(context.Background(), llm.NewPrompt("You are an HR assistant.", "How many days?"), &llm.RequestOptions{
		Temperature: llm.Float64Ptr(0),
		MaxTokens:   llm.IntPtr(512),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("x-api-key") != "test-api-key" {
		t.Errorf("expected x-api-key header, got %q", headers.Get("x-api-key"))
	}
	if headers.Get("anthropic-version") != apiVersion {
		t.Errorf("expected anthropic-version %s, got %q", apiVersion, headers.Get("anthropic-version"))
	}
	if body["system"] != "You are an HR assistant." {
		t.Errorf("expected system prompt, got %v", body["system"])
	}
	if body["max_tokens"] != float64(512) {
		t.Errorf("expected max_tokens 512, got %v", body["max_tokens"])
	}
	if body["temperature"] != float64(0) {
		t.Errorf("expected temperature 0, got %v", body["temperature"])
	}
	if resp.Content != "Fifteen days (a1b2c3d4e5)" {
		t.Errorf("expected concatenated text blocks, got %q", resp.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("unexpected usage: %+v", resp)
	}
}

func TestComplete_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	_, err := New("k", "m", server.URL).Complete(context.Background(), llm.NewPrompt("", "q"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "slow down") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestEmbed_Unsupported(t *testing.T) {
	_, err := New("k", "m", "").Embed(context.Background(), []string{"x"})
	if !errors.Is(err, ErrEmbeddingUnsupported) {
		t.Fatalf("expected ErrEmbeddingUnsupported, got %v", err)
	}
}
