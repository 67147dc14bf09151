package services

import (
	"math"
	"testing"

	"cohort/internal/models"
	"cohort/internal/vectors"
)

func TestApplySearchEMA(t *testing.T) {
	b := &models.UserBehavior{UserID: "u1"}

	// First search seeds the adaptive vector directly.
	applySearch(b, vectors.Vector{1, 0}, "golang backend", 2)
	vec, err := b.AdaptiveEmbedding(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 1 || vec[1] != 0 {
		t.Errorf("expected seed [1 0], got %v", vec)
	}
	if b.TotalSearches != 1 {
		t.Errorf("expected 1 search, got %d", b.TotalSearches)
	}

	// Second search: 0.2·[0,1] + 0.8·[1,0] = [0.8, 0.2]
	applySearch(b, vectors.Vector{0, 1}, "react frontend", 2)
	vec, err = b.AdaptiveEmbedding(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(vec[0]-0.8) > 1e-9 || math.Abs(vec[1]-0.2) > 1e-9 {
		t.Errorf("expected [0.8 0.2], got %v", vec)
	}

	// Newest-first query history
	if b.RecentSearches[0] != "react frontend" || b.RecentSearches[1] != "golang backend" {
		t.Errorf("expected newest-first history, got %v", b.RecentSearches)
	}
	if b.LastInteraction.IsZero() {
		t.Error("expected last interaction timestamp to be set")
	}
}

func TestApplySearchHistoryCap(t *testing.T) {
	b := &models.UserBehavior{UserID: "u1"}
	for i := 0; i < models.MaxRecentSearches+5; i++ {
		applySearch(b, vectors.Vector{1, 0}, "query", 2)
	}

	if len(b.RecentSearches) != models.MaxRecentSearches {
		t.Errorf("expected history capped at %d, got %d", models.MaxRecentSearches, len(b.RecentSearches))
	}
	if b.TotalSearches != int64(models.MaxRecentSearches+5) {
		t.Errorf("counter should keep counting past the cap, got %d", b.TotalSearches)
	}
}

func TestApplySaveBlendsHarderThanSearch(t *testing.T) {
	b := &models.UserBehavior{UserID: "u1"}
	applySearch(b, vectors.Vector{1, 0}, "seed", 2)

	// Save blends at α=0.3: 0.3·[0,1] + 0.7·[1,0] = [0.7, 0.3]
	applySave(b, vectors.Vector{0, 1}, 2)
	vec, err := b.AdaptiveEmbedding(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(vec[0]-0.7) > 1e-9 || math.Abs(vec[1]-0.3) > 1e-9 {
		t.Errorf("expected [0.7 0.3], got %v", vec)
	}
}

func TestApplySaveSeedsWhenNoVectorYet(t *testing.T) {
	b := &models.UserBehavior{UserID: "u1"}
	applySave(b, vectors.Vector{0, 1}, 2)

	vec, err := b.AdaptiveEmbedding(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 0 || vec[1] != 1 {
		t.Errorf("expected saved profile embedding as seed, got %v", vec)
	}
	if b.TotalSaves != 1 {
		t.Errorf("expected 1 save, got %d", b.TotalSaves)
	}
}

func TestApplySaveWithoutEmbeddingStillCounts(t *testing.T) {
	b := &models.UserBehavior{UserID: "u1"}
	applySave(b, nil, 2)

	if b.TotalSaves != 1 {
		t.Errorf("expected save counted, got %d", b.TotalSaves)
	}
	if b.AdaptiveVector != nil {
		t.Errorf("expected no vector, got %v", b.AdaptiveVector)
	}
}

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name                   string
		searches, saves, views int64
		want                   int
	}{
		{"no activity", 0, 0, 0, 0},
		{"1 search + 1 save + 2 views", 1, 1, 2, 9},
		{"search cap at 30", 100, 0, 0, 30},
		{"save cap at 40", 0, 100, 0, 40},
		{"view cap at 30", 0, 0, 100, 30},
		{"all caps clamp to 100", 1000, 1000, 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engagementScore(tt.searches, tt.saves, tt.views); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestApplyViewOnlyCounts(t *testing.T) {
	b := &models.UserBehavior{UserID: "u1"}
	applyView(b)
	applyView(b)

	if b.TotalProfileViews != 2 {
		t.Errorf("expected 2 views, got %d", b.TotalProfileViews)
	}
	if b.AdaptiveVector != nil {
		t.Error("views must not touch the adaptive vector")
	}
	if b.EngagementScore != 2 {
		t.Errorf("expected engagement 2, got %d", b.EngagementScore)
	}
}

func TestAdaptiveWeight(t *testing.T) {
	tests := []struct {
		engagement int
		want       float64
	}{
		{0, 0.2},
		{50, 0.3},
		{100, 0.4},
		{150, 0.4}, // capped
	}

	for _, tt := range tests {
		if got := adaptiveWeight(tt.engagement); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("engagement %d: expected %v, got %v", tt.engagement, tt.want, got)
		}
	}
}
