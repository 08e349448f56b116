package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func embeddingsHandler(t *testing.T, vec []float32, calls *int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model == "" || req.Input == "" {
			t.Errorf("request missing fields: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec}},
		})
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(embeddingsHandler(t, []float32{0.1, 0.2, 0.3}, &calls))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "test-key", "test-model", 3)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "Title: Dune")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("embedding: got %v", vec)
	}
}

func TestOpenAIEmbedder_CacheHitsSkipProvider(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(embeddingsHandler(t, []float32{1, 2}, &calls))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "m", 2, WithCache(NewEmbeddingCache(10)))
	defer e.Close()

	for i := 0; i < 3; i++ {
		if _, err := e.Embed(context.Background(), "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("provider calls: got %d, want 1", n)
	}
}

func TestOpenAIEmbedder_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "m", 3)
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("expected error on provider 500")
	}
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(embeddingsHandler(t, []float32{1, 2}, &calls))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "m", 5)
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("expected error on dimension mismatch")
	}
}

func TestOpenAIEmbedder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "m", 3, WithTimeout(20*time.Millisecond))
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	defer e.Close()
	a, _ := e.Embed(context.Background(), "same")
	b, _ := e.Embed(context.Background(), "same")
	c, _ := e.Embed(context.Background(), "different")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text produced different embeddings at %d", i)
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}
