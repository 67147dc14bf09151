package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubCompletion struct {
	response string
	err      error
	lastUser string
}

func (s *stubCompletion) Complete(_ context.Context, _, user string) (string, error) {
	s.lastUser = user
	return s.response, s.err
}

func TestLabelTrimsQuotes(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain label", "Platform Engineers", "Platform Engineers"},
		{"double quoted", `"Platform Engineers"`, "Platform Engineers"},
		{"single quoted", "'Platform Engineers'", "Platform Engineers"},
		{"quoted with whitespace", `  "ML Infrastructure"  `, "ML Infrastructure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labeler := &ClusterLabeler{llm: &stubCompletion{response: tt.response}}
			got := labeler.Label(context.Background(), []string{"platform"}, nil)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLabelFallsBackOnServiceFailure(t *testing.T) {
	labeler := &ClusterLabeler{llm: &stubCompletion{err: errors.New("upstream down")}}

	got := labeler.Label(context.Background(), []string{"kubernetes", "terraform"}, nil)
	if got != "Kubernetes" {
		t.Errorf("expected capitalized first keyword, got %q", got)
	}
}

func TestLabelFallsBackOnEmptyResponse(t *testing.T) {
	labeler := &ClusterLabeler{llm: &stubCompletion{response: `""`}}

	got := labeler.Label(context.Background(), []string{"fintech"}, nil)
	if got != "Fintech" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestLabelCapsSamples(t *testing.T) {
	stub := &stubCompletion{response: "Data Platform Group"}
	labeler := &ClusterLabeler{llm: stub}

	samples := []string{"one", "two", "three", "four", "five", "six", "seven"}
	labeler.Label(context.Background(), []string{"dataeng"}, samples)

	if strings.Contains(stub.lastUser, "six") || strings.Contains(stub.lastUser, "seven") {
		t.Errorf("expected at most %d samples in prompt, got: %s", labelSampleSize, stub.lastUser)
	}
	if !strings.Contains(stub.lastUser, "five") {
		t.Errorf("expected the first %d samples in prompt", labelSampleSize)
	}
}

func TestFallbackLabel(t *testing.T) {
	if got := FallbackLabel(nil); got != "Community" {
		t.Errorf("expected default label for no keywords, got %q", got)
	}
	if got := FallbackLabel([]string{"security"}); got != "Security" {
		t.Errorf("expected Security, got %q", got)
	}
}
