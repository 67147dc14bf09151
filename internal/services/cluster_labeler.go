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
)

// labelSampleSize caps the member identity texts sent to the labeling
// service per cluster.
const labelSampleSize = 5

const labelSystemPrompt = `You name professional sub-communities. Given representative keywords and member summaries, reply with ONLY a specific 2-4 word label for the group. Avoid generic labels like "Tech Professionals" or "Diverse Group".`

// completionClient is the seam over the text-summarization service so the
// labeler can be exercised with a double in tests.
type completionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ClusterLabeler produces a short human-readable name per cluster. Service
// failure is never fatal: the label falls back deterministically to the
// capitalized first keyword.
type ClusterLabeler struct {
	llm completionClient
}

// NewClusterLabeler creates a labeler backed by an OpenAI-compatible chat
// completions endpoint.
func NewClusterLabeler(baseURL, apiKey, model string) *ClusterLabeler {
	return &ClusterLabeler{
		llm: &chatCompletionClient{
			baseURL:    strings.TrimRight(baseURL, "/"),
			apiKey:     apiKey,
			model:      model,
			httpClient: &http.Client{Timeout: 30 * time.Second},
		},
	}
}

// Label names a cluster from its keywords and up to labelSampleSize member
// summaries. Always returns a usable label.
func (l *ClusterLabeler) Label(ctx context.Context, keywords, samples []string) string {
	if len(samples) > labelSampleSize {
		samples = samples[:labelSampleSize]
	}

	var b strings.Builder
	b.WriteString("Keywords: ")
	b.WriteString(strings.Join(keywords, ", "))
	b.WriteString("\n\nMember summaries:\n")
	for _, s := range samples {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}

	label, err := l.llm.Complete(ctx, labelSystemPrompt, b.String())
	if err != nil {
		fallback := FallbackLabel(keywords)
		log.Printf("⚠️ [CLUSTER-LABELER] Labeling failed, using %q: %v", fallback, err)
		return fallback
	}

	label = trimQuotes(strings.TrimSpace(label))
	if label == "" {
		return FallbackLabel(keywords)
	}
	return label
}

// FallbackLabel is the deterministic label used when the summarization
// service is unavailable: the first keyword, capitalized.
func FallbackLabel(keywords []string) string {
	if len(keywords) == 0 {
		return "Community"
	}
	kw := keywords[0]
	return strings.ToUpper(kw[:1]) + kw[1:]
}

// trimQuotes strips one layer of surrounding quote characters. Models often
// wrap short answers in quotes; no further validation is done on the label.
func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// chatCompletionClient calls an OpenAI-compatible chat completions API.
type chatCompletionClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func (c *chatCompletionClient) Complete(ctx context.Context, system, user string) (string, error) {
	requestBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"stream":      false,
		"temperature": 0.3,
		"max_tokens":  20,
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", externalErr("labeling", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", externalErr("labeling", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", externalErr("labeling", fmt.Errorf("status %d: %s", resp.StatusCode, truncateForLog(body)))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", externalErr("labeling", fmt.Errorf("failed to parse response: %v", err))
	}
	if len(apiResponse.Choices) == 0 {
		return "", externalErr("labeling", fmt.Errorf("no choices in response"))
	}

	return apiResponse.Choices[0].Message.Content, nil
}
