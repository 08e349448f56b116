package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAIChat_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages: got %+v", req.Messages)
		}
		if req.Temperature != 0.7 {
			t.Errorf("temperature: got %v", req.Temperature)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format: got %+v", req.ResponseFormat)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"ok": true}`}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIChat(srv.URL, "key", "model")
	defer c.Close()

	out, err := c.Complete(context.Background(), &CompletionRequest{
		System:       "You are a helpful librarian assistant.",
		User:         "pick some books",
		Temperature:  0.7,
		JSONResponse: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"ok": true}` {
		t.Errorf("content: got %q", out)
	}
}

func TestOpenAIChat_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIChat(srv.URL, "", "m")
	if _, err := c.Complete(context.Background(), &CompletionRequest{User: "x"}); err == nil {
		t.Error("expected error on provider 429")
	}
}

func TestOpenAIChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewOpenAIChat(srv.URL, "", "m")
	if _, err := c.Complete(context.Background(), &CompletionRequest{User: "x"}); err == nil {
		t.Error("expected error on empty choices")
	}
}

func TestOpenAIChat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewOpenAIChat(srv.URL, "", "m", WithTimeout(20*time.Millisecond))
	if _, err := c.Complete(context.Background(), &CompletionRequest{User: "x"}); err == nil {
		t.Error("expected timeout error")
	}
}
