package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"cohort/internal/vectors"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	// maxEmbedInputChars is the embedding service's input budget. Longer
	// identity text is truncated, not rejected.
	maxEmbedInputChars = 8000

	// minEmbedInputChars below which there is no signal worth embedding.
	minEmbedInputChars = 2

	queryCacheTTL     = 10 * time.Minute
	queryCacheCleanup = 20 * time.Minute
)

// EmbeddingProvider generates a fixed-length vector for a text. Implemented
// by EmbeddingService in production and by test doubles in tests.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) (vectors.Vector, error)
	Dim() int
}

// EmbeddingService calls an OpenAI-compatible /embeddings endpoint. Calls
// are rate limited, and search-query embeddings are cached in process since
// users repeat queries often.
type EmbeddingService struct {
	baseURL    string
	apiKey     string
	model      string
	dim        int
	httpClient *http.Client
	limiter    *rate.Limiter
	queryCache *gocache.Cache
}

// NewEmbeddingService creates an embedding service client.
func NewEmbeddingService(baseURL, apiKey, model string, dim int) *EmbeddingService {
	return &EmbeddingService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dim:        dim,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// 10 req/s sustained with small bursts keeps batch runs inside
		// typical provider limits.
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		queryCache: gocache.New(queryCacheTTL, queryCacheCleanup),
	}
}

// Dim returns the vector dimensionality this service produces.
func (s *EmbeddingService) Dim() int {
	return s.dim
}

// Embed converts text into a dense vector. Empty or too-short input returns
// ErrDataInsufficiency; service errors return ErrExternalService. Neither
// ever yields a zero vector, and batch callers skip the item and continue.
func (s *EmbeddingService) Embed(ctx context.Context, text string) (vectors.Vector, error) {
	text = strings.TrimSpace(text)
	if len(text) < minEmbedInputChars {
		return nil, fmt.Errorf("%w: text too short to embed", ErrDataInsufficiency)
	}
	if len(text) > maxEmbedInputChars {
		// Back up to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := maxEmbedInputChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, externalErr("embedding", err)
	}

	failed := true
	defer func() {
		if m := GetMetrics(); m != nil {
			m.RecordEmbeddingRequest(failed)
		}
	}()

	requestBody := map[string]interface{}{
		"model": s.model,
		"input": text,
	}
	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, externalErr("embedding", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, externalErr("embedding", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [EMBEDDING] API error (status %d): %s", resp.StatusCode, truncateForLog(body))
		return nil, externalErr("embedding", fmt.Errorf("status %d", resp.StatusCode))
	}

	var apiResponse struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, externalErr("embedding", fmt.Errorf("failed to parse response: %v", err))
	}
	if len(apiResponse.Data) == 0 || len(apiResponse.Data[0].Embedding) == 0 {
		return nil, externalErr("embedding", fmt.Errorf("empty embedding in response"))
	}

	vec, err := vectors.Parse(apiResponse.Data[0].Embedding, s.dim)
	if err != nil {
		return nil, externalErr("embedding", err)
	}
	failed = false
	return vec, nil
}

// EmbedQuery embeds a search query with an in-process cache in front.
// Query strings repeat far more than profile text does.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) (vectors.Vector, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, found := s.queryCache.Get(key); found {
		return cached.(vectors.Vector), nil
	}

	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.queryCache.Set(key, vec, gocache.DefaultExpiration)
	return vec, nil
}

func truncateForLog(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
