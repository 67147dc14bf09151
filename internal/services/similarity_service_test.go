package services

import (
	"testing"
)

func TestRankMatchesExcludesSelfAndBelowThreshold(t *testing.T) {
	candidates := []candidate{
		{UserID: "me", Score: 0.99},
		{UserID: "alice", Score: 0.91},
		{UserID: "bob", Score: 0.70},
		{UserID: "carol", Score: 0.69},
		{UserID: "dave", Score: 0.40},
	}

	matches := rankMatches(candidates, "me", 0.70, 30)

	for _, m := range matches {
		if m.UserID == "me" {
			t.Error("querying user must never appear in their own results")
		}
		if m.Similarity < 0.70 {
			t.Errorf("match %s below threshold: %.2f", m.UserID, m.Similarity)
		}
	}
	if len(matches) != 2 {
		t.Fatalf("expected alice and bob, got %v", matches)
	}
	if matches[0].UserID != "alice" || matches[1].UserID != "bob" {
		t.Errorf("expected descending similarity order, got %v", matches)
	}
}

func TestRankMatchesPercentScaling(t *testing.T) {
	matches := rankMatches([]candidate{
		{UserID: "alice", Score: 0.914},
		{UserID: "bob", Score: 0.705},
	}, "me", 0.70, 30)

	if matches[0].MatchPercent != 91 {
		t.Errorf("expected 91%%, got %d", matches[0].MatchPercent)
	}
	if matches[1].MatchPercent != 71 {
		t.Errorf("expected 71%% (rounded), got %d", matches[1].MatchPercent)
	}
}

func TestRankMatchesResultCap(t *testing.T) {
	var candidates []candidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, candidate{
			UserID: string(rune('a'+i%26)) + string(rune('0'+i/26)),
			Score:  0.99 - float64(i)*0.001,
		})
	}

	matches := rankMatches(candidates, "me", 0.70, 30)
	if len(matches) != 30 {
		t.Errorf("expected result capped at 30, got %d", len(matches))
	}

	// The cap keeps the best candidates.
	if matches[0].Similarity < matches[len(matches)-1].Similarity {
		t.Error("expected descending order after cap")
	}
}

func TestRankMatchesDeterministicTieBreak(t *testing.T) {
	matches := rankMatches([]candidate{
		{UserID: "zoe", Score: 0.8},
		{UserID: "amy", Score: 0.8},
	}, "me", 0.70, 30)

	if matches[0].UserID != "amy" || matches[1].UserID != "zoe" {
		t.Errorf("expected alphabetical tie-break, got %v", matches)
	}
}

func TestRankMatchesEmptyInput(t *testing.T) {
	if got := rankMatches(nil, "me", 0.70, 30); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
