package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

// newEmbeddingTestServer returns a server that answers /embeddings with a
// fixed vector and records every request's input text.
func newEmbeddingTestServer(t *testing.T, dim int, inputs *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		*inputs = append(*inputs, req.Input)

		vec := make([]float64, dim)
		vec[0] = 1
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec}},
		})
	}))
}

func TestEmbedReturnsVector(t *testing.T) {
	var inputs []string
	server := newEmbeddingTestServer(t, 4, &inputs)
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	vec, err := svc.Embed(context.Background(), "distributed systems engineer")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("expected 4 dims, got %d", len(vec))
	}
	if vec[0] != 1 {
		t.Errorf("expected vec[0]=1, got %f", vec[0])
	}
}

func TestEmbedRejectsShortInput(t *testing.T) {
	var inputs []string
	server := newEmbeddingTestServer(t, 4, &inputs)
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	for _, text := range []string{"", " ", "a"} {
		if _, err := svc.Embed(context.Background(), text); !errors.Is(err, ErrDataInsufficiency) {
			t.Errorf("Embed(%q): expected ErrDataInsufficiency, got %v", text, err)
		}
	}
	if len(inputs) != 0 {
		t.Errorf("short input should never reach the API, got %d calls", len(inputs))
	}
}

func TestEmbedTruncatesLongInput(t *testing.T) {
	var inputs []string
	server := newEmbeddingTestServer(t, 4, &inputs)
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	long := strings.Repeat("x", maxEmbedInputChars+500)
	if _, err := svc.Embed(context.Background(), long); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("expected 1 API call, got %d", len(inputs))
	}
	if len(inputs[0]) != maxEmbedInputChars {
		t.Errorf("expected input truncated to %d chars, got %d", maxEmbedInputChars, len(inputs[0]))
	}
}

func TestEmbedTruncatesOnRuneBoundary(t *testing.T) {
	var inputs []string
	server := newEmbeddingTestServer(t, 4, &inputs)
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	// Three-byte runes so the byte budget falls inside a character.
	long := strings.Repeat("界", maxEmbedInputChars/3+200)
	if _, err := svc.Embed(context.Background(), long); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("expected 1 API call, got %d", len(inputs))
	}
	if len(inputs[0]) > maxEmbedInputChars {
		t.Errorf("expected at most %d bytes, got %d", maxEmbedInputChars, len(inputs[0]))
	}
	if strings.ContainsRune(inputs[0], utf8.RuneError) {
		t.Error("truncation split a multi-byte character")
	}
}

func TestEmbedAPIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	if _, err := svc.Embed(context.Background(), "some profile text"); !errors.Is(err, ErrExternalService) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	if _, err := svc.Embed(context.Background(), "some profile text"); !errors.Is(err, ErrExternalService) {
		t.Errorf("expected ErrExternalService for empty data, got %v", err)
	}
}

func TestEmbedQueryCaches(t *testing.T) {
	var inputs []string
	server := newEmbeddingTestServer(t, 4, &inputs)
	defer server.Close()

	svc := NewEmbeddingService(server.URL, "test-key", "test-model", 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.EmbedQuery(ctx, "machine learning"); err != nil {
			t.Fatalf("EmbedQuery failed: %v", err)
		}
	}
	// Same query modulo case and whitespace hits the same cache entry.
	if _, err := svc.EmbedQuery(ctx, "  Machine Learning "); err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}
	if len(inputs) != 1 {
		t.Errorf("expected 1 API call for repeated query, got %d", len(inputs))
	}

	if _, err := svc.EmbedQuery(ctx, "rust compilers"); err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}
	if len(inputs) != 2 {
		t.Errorf("expected 2 API calls after distinct query, got %d", len(inputs))
	}
}
