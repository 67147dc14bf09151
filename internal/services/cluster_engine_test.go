package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"cohort/internal/config"
	"cohort/internal/vectors"
)

// testEngineConfig widens the candidate k range so small synthetic
// populations can settle on their true structure.
func testEngineConfig() config.ClusteringConfig {
	cfg := config.DefaultClusteringConfig()
	cfg.KMin = 2
	cfg.KMax = 5
	return cfg
}

// twoGroupPoints builds two tight embedding groups of the given size:
// within-group cosine distance well under 0.1, between-group well over 0.5.
func twoGroupPoints(perGroup int, seed int64) []ProfilePoint {
	rng := rand.New(rand.NewSource(seed))
	var points []ProfilePoint

	bases := []vectors.Vector{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	texts := []string{
		"distributed systems engineer building storage infrastructure",
		"brand designer crafting illustration and typography systems",
	}

	for g, base := range bases {
		for i := 0; i < perGroup; i++ {
			v := make(vectors.Vector, len(base))
			for d := range v {
				v[d] = base[d] + (rng.Float64()-0.5)*0.04
			}
			points = append(points, ProfilePoint{
				UserID:       fmt.Sprintf("%c-%02d", 'a'+g, i),
				Vector:       v,
				IdentityText: texts[g],
			})
		}
	}
	return points
}

func TestClusterEnginePopulationFloor(t *testing.T) {
	engine := NewClusterEngine(testEngineConfig(), 1)

	_, err := engine.Run(context.Background(), twoGroupPoints(5, 1))
	if err == nil {
		t.Fatal("expected population floor error")
	}
	if !errors.Is(err, ErrDataInsufficiency) {
		t.Errorf("expected ErrDataInsufficiency, got %v", err)
	}
}

func TestClusterEngineTwoTightGroups(t *testing.T) {
	engine := NewClusterEngine(testEngineConfig(), 42)

	points := twoGroupPoints(10, 7)
	result, err := engine.Run(context.Background(), points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.K != 2 {
		t.Errorf("expected winning k=2, got %d", result.K)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("expected exactly 2 clusters, got %d", len(result.Clusters))
	}
	if result.Silhouette <= 0.5 {
		t.Errorf("expected silhouette > 0.5 for well-separated groups, got %.4f", result.Silhouette)
	}

	total := 0
	for _, c := range result.Clusters {
		if len(c.Members) < 8 {
			t.Errorf("expected ~10 members per cluster, got %d", len(c.Members))
		}
		total += len(c.Members)
	}
	if total+result.DroppedOutliers != len(points) {
		t.Errorf("members (%d) + dropped outliers (%d) should cover all %d points",
			total, result.DroppedOutliers, len(points))
	}

	// Members of one group must never land in the other's cluster.
	for _, c := range result.Clusters {
		prefix := c.Members[0].UserID[:1]
		for _, m := range c.Members {
			if m.UserID[:1] != prefix {
				t.Errorf("cluster mixes groups: %s alongside %s", m.UserID, c.Members[0].UserID)
			}
		}
	}
}

func TestClusterEngineDeterministicWithFixedSeed(t *testing.T) {
	points := twoGroupPoints(10, 9)

	partition := func(seed int64) []string {
		engine := NewClusterEngine(testEngineConfig(), seed)
		result, err := engine.Run(context.Background(), points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Canonical form: each cluster as a sorted member list, clusters
		// sorted, so labels do not matter.
		var sets []string
		for _, c := range result.Clusters {
			ids := make([]string, len(c.Members))
			for i, m := range c.Members {
				ids[i] = m.UserID
			}
			sort.Strings(ids)
			sets = append(sets, strings.Join(ids, ","))
		}
		sort.Strings(sets)
		return sets
	}

	first := partition(123)
	second := partition(123)
	if len(first) != len(second) {
		t.Fatalf("partition sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("partition differs at cluster %d:\n%s\n%s", i, first[i], second[i])
		}
	}
}

func TestClusterEngineSkipsPointsWithoutVectors(t *testing.T) {
	engine := NewClusterEngine(testEngineConfig(), 42)

	points := twoGroupPoints(10, 7)
	points = append(points,
		ProfilePoint{UserID: "no-vector-1", IdentityText: "machine learning researcher"},
		ProfilePoint{UserID: "no-vector-2", Vector: vectors.Vector{}},
	)

	result, err := engine.Run(context.Background(), points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(result.Clusters))
	}
	for _, c := range result.Clusters {
		for _, m := range c.Members {
			if strings.HasPrefix(m.UserID, "no-vector") {
				t.Errorf("vectorless point %s assigned to a cluster", m.UserID)
			}
		}
	}
}

func TestClusterEngineVectorlessPointsDoNotLiftPopulation(t *testing.T) {
	engine := NewClusterEngine(testEngineConfig(), 1)

	// 10 real points plus vectorless padding past the floor of 15.
	points := twoGroupPoints(5, 1)
	for i := 0; i < 10; i++ {
		points = append(points, ProfilePoint{UserID: fmt.Sprintf("empty-%02d", i)})
	}

	if _, err := engine.Run(context.Background(), points); !errors.Is(err, ErrDataInsufficiency) {
		t.Errorf("expected ErrDataInsufficiency, got %v", err)
	}
}

func TestClusterEngineSampleTexts(t *testing.T) {
	points := twoGroupPoints(10, 7)

	run := func(seed int64) [][]string {
		engine := NewClusterEngine(testEngineConfig(), seed)
		result, err := engine.Run(context.Background(), points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var samples [][]string
		for _, c := range result.Clusters {
			if len(c.SampleTexts) == 0 || len(c.SampleTexts) > labelSampleSize {
				t.Errorf("expected 1..%d sample texts, got %d", labelSampleSize, len(c.SampleTexts))
			}
			for _, text := range c.SampleTexts {
				found := false
				for _, p := range points {
					if p.IdentityText == text {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("sample text not drawn from members: %q", text)
				}
			}
			samples = append(samples, c.SampleTexts)
		}
		return samples
	}

	first := run(99)
	second := run(99)
	if len(first) != len(second) {
		t.Fatalf("cluster counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if strings.Join(first[i], "|") != strings.Join(second[i], "|") {
			t.Errorf("samples differ under the same seed at cluster %d", i)
		}
	}
}

func TestFilterOutliers(t *testing.T) {
	// Nine points at distance ~1 from the centroid, one at distance 10.
	centroid := vectors.Vector{0, 0}
	vecs := make([]vectors.Vector, 10)
	idx := make([]int, 10)
	for i := 0; i < 9; i++ {
		vecs[i] = vectors.Vector{1, 0}
		idx[i] = i
	}
	vecs[9] = vectors.Vector{10, 0}
	idx[9] = 9

	survivors, dropped := filterOutliers(vecs, centroid, idx, 1.5)
	if len(dropped) != 1 || dropped[0] != 9 {
		t.Errorf("expected only point 9 dropped, got %v", dropped)
	}
	if len(survivors) != 9 {
		t.Errorf("expected 9 survivors, got %d", len(survivors))
	}

	// Uniform distances: stddev is zero, nobody is an outlier.
	survivors, dropped = filterOutliers(vecs[:9], centroid, idx[:9], 1.5)
	if len(dropped) != 0 {
		t.Errorf("expected no outliers among identical distances, got %v", dropped)
	}
	if len(survivors) != 9 {
		t.Errorf("expected all 9 survivors, got %d", len(survivors))
	}
}

func TestExtractKeywords(t *testing.T) {
	pool := []string{
		"kubernetes engineer running kubernetes clusters",
		"kubernetes and terraform automation",
		"terraform modules, observability tooling",
		"observability dashboards", // "and", "ai" style short tokens excluded by length
	}

	keywords := extractKeywords(pool, 3, 5)
	if len(keywords) != 3 {
		t.Fatalf("expected 3 keywords, got %v", keywords)
	}
	if keywords[0] != "kubernetes" {
		t.Errorf("expected kubernetes first (3 occurrences), got %v", keywords)
	}
	// terraform and observability both occur twice; alphabetical tie-break
	if keywords[1] != "observability" || keywords[2] != "terraform" {
		t.Errorf("expected deterministic tie-break [observability terraform], got %v", keywords)
	}
}

func TestExtractKeywordsDropsStopwordsAndShortTokens(t *testing.T) {
	pool := []string{
		"years of experience working with golang golang golang",
		"go js ml", // all under the length floor
	}

	keywords := extractKeywords(pool, 5, 5)
	for _, kw := range keywords {
		if keywordStopwords[kw] {
			t.Errorf("stopword %q leaked into keywords", kw)
		}
		if len(kw) < 5 {
			t.Errorf("short token %q leaked into keywords", kw)
		}
	}
	if len(keywords) != 1 || keywords[0] != "golang" {
		t.Errorf("expected [golang], got %v", keywords)
	}
}
