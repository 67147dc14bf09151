package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"strings"

	"cohort/internal/config"
	"cohort/internal/vectors"
)

// fullSilhouetteCap bounds the O(n²) rescoring pass of the winning k.
// Populations above this are sampled even for the final reported score.
const fullSilhouetteCap = 500

// ProfilePoint is one eligible profile prepared for clustering: its
// identity embedding plus the text pooled later for keyword extraction.
type ProfilePoint struct {
	UserID         string
	Vector         vectors.Vector
	IdentityText   string
	RecentSearches []string
}

// EngineMember is a good-fit member of a discovered cluster.
type EngineMember struct {
	UserID           string
	CentroidDistance float64
}

// EngineCluster is one discovered sub-community before labeling.
type EngineCluster struct {
	Centroid    vectors.Vector
	Members     []EngineMember
	Keywords    []string
	SampleTexts []string // up to 5 member identity texts for the labeler
}

// EngineResult is the outcome of one clustering run.
type EngineResult struct {
	K               int
	Silhouette      float64
	Clusters        []EngineCluster
	DroppedOutliers int
	DroppedClusters int
}

// ClusterEngine partitions a population's profile vectors into
// quality-scored groups with outlier filtering. k is selected adaptively by
// silhouette score over a candidate range. The engine is pure computation:
// no storage, no network. A fixed seed makes runs reproducible.
type ClusterEngine struct {
	cfg config.ClusteringConfig
	rng *rand.Rand
}

// NewClusterEngine creates an engine with the given tunables and seed.
func NewClusterEngine(cfg config.ClusteringConfig, seed int64) *ClusterEngine {
	return &ClusterEngine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Run clusters the given points. Fewer than the minimum population returns
// ErrDataInsufficiency and no clusters; the caller skips the scope without
// touching persisted state. Zero surviving clusters is a valid result, not
// an error.
func (e *ClusterEngine) Run(ctx context.Context, points []ProfilePoint) (*EngineResult, error) {
	// A point without a vector cannot be placed. Drop it before the
	// population check so it counts as neither member nor outlier.
	kept := make([]ProfilePoint, 0, len(points))
	for _, p := range points {
		if len(p.Vector) > 0 {
			kept = append(kept, p)
		}
	}
	if len(kept) < len(points) {
		log.Printf("⏭️ [CLUSTER-ENGINE] Dropped %d points without embeddings", len(points)-len(kept))
	}
	points = kept

	n := len(points)
	if n < e.cfg.MinPopulation {
		return nil, fmt.Errorf("%w: %d eligible profiles, need %d", ErrDataInsufficiency, n, e.cfg.MinPopulation)
	}

	kMin, kMax := e.cfg.KMin, e.cfg.KMax
	if kMax > n-1 {
		kMax = n - 1
	}
	if kMin > kMax {
		kMin = kMax
	}

	vecs := make([]vectors.Vector, n)
	for i, p := range points {
		vecs[i] = p.Vector
	}

	// Adaptive k selection: one k-means run per candidate, scored by a
	// sampled silhouette. Ties resolve to the lowest k.
	bestK := 0
	bestScore := math.Inf(-1)
	var bestAssign []int
	var bestCentroids []vectors.Vector

	for k := kMin; k <= kMax; k++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		centroids, assign := e.kmeans(vecs, k)
		score := e.silhouette(vecs, assign, k, e.cfg.SilhouetteSample)
		log.Printf("📐 [CLUSTER-ENGINE] k=%d silhouette=%.4f", k, score)

		if score > bestScore {
			bestScore = score
			bestK = k
			bestAssign = assign
			bestCentroids = centroids
		}
	}

	// Rescore the winner without search-phase sampling for reporting.
	fullSample := 0
	if n > fullSilhouetteCap {
		fullSample = fullSilhouetteCap
	}
	finalScore := e.silhouette(vecs, bestAssign, bestK, fullSample)
	log.Printf("🏆 [CLUSTER-ENGINE] Selected k=%d, silhouette=%.4f (%s)", bestK, finalScore, silhouetteBand(finalScore))

	// Group members, filter outliers, discard undersized clusters.
	result := &EngineResult{K: bestK, Silhouette: finalScore}
	for c := 0; c < bestK; c++ {
		var memberIdx []int
		for i, a := range bestAssign {
			if a == c {
				memberIdx = append(memberIdx, i)
			}
		}
		if len(memberIdx) == 0 {
			continue
		}

		survivors, dropped := filterOutliers(vecs, bestCentroids[c], memberIdx, e.cfg.OutlierStdDevs)
		result.DroppedOutliers += len(dropped)

		if len(survivors) < e.cfg.MinClusterSize {
			result.DroppedClusters++
			continue
		}

		cluster := EngineCluster{Centroid: bestCentroids[c]}
		var pool []string
		for _, idx := range survivors {
			cluster.Members = append(cluster.Members, EngineMember{
				UserID:           points[idx].UserID,
				CentroidDistance: vectors.Euclidean(vecs[idx], bestCentroids[c]),
			})
			pool = append(pool, points[idx].IdentityText)
			pool = append(pool, points[idx].RecentSearches...)
		}

		// The labeler sees a random sample of member texts, drawn from
		// the seeded rng so runs stay reproducible.
		sample := survivors
		if len(survivors) > labelSampleSize {
			perm := e.rng.Perm(len(survivors))
			sample = make([]int, labelSampleSize)
			for i := range sample {
				sample[i] = survivors[perm[i]]
			}
		}
		for _, idx := range sample {
			cluster.SampleTexts = append(cluster.SampleTexts, points[idx].IdentityText)
		}

		cluster.Keywords = extractKeywords(pool, e.cfg.KeywordsExtracted, e.cfg.MinKeywordLength)
		result.Clusters = append(result.Clusters, cluster)
	}

	log.Printf("✅ [CLUSTER-ENGINE] %d clusters survive (%d outliers dropped, %d clusters under size %d)",
		len(result.Clusters), result.DroppedOutliers, result.DroppedClusters, e.cfg.MinClusterSize)
	return result, nil
}

// kmeans runs Lloyd's algorithm with k-means++ initialization.
func (e *ClusterEngine) kmeans(vecs []vectors.Vector, k int) ([]vectors.Vector, []int) {
	centroids := e.initCentroids(vecs, k)
	assign := make([]int, len(vecs))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		changed := false
		for i, v := range vecs {
			best := nearestCentroid(v, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		// Recompute centroids; an emptied cluster is reseeded with the
		// point farthest from its current centroid assignment.
		members := make([][]vectors.Vector, k)
		for i, a := range assign {
			members[a] = append(members[a], vecs[i])
		}
		for c := 0; c < k; c++ {
			if len(members[c]) == 0 {
				centroids[c] = vecs[farthestPoint(vecs, centroids, assign)]
				continue
			}
			centroids[c] = vectors.Mean(members[c])
		}
	}
	return centroids, assign
}

// initCentroids implements k-means++ seeding: the first centroid is a
// uniform random point, each subsequent one is drawn with probability
// proportional to its squared distance from the nearest chosen centroid.
func (e *ClusterEngine) initCentroids(vecs []vectors.Vector, k int) []vectors.Vector {
	centroids := make([]vectors.Vector, 0, k)
	centroids = append(centroids, vecs[e.rng.Intn(len(vecs))])

	dist2 := make([]float64, len(vecs))
	for len(centroids) < k {
		var total float64
		for i, v := range vecs {
			d := vectors.Euclidean(v, centroids[len(centroids)-1])
			d2 := d * d
			if len(centroids) == 1 || d2 < dist2[i] {
				dist2[i] = d2
			}
			total += dist2[i]
		}

		if total == 0 {
			// All points coincide with chosen centroids; any pick works.
			centroids = append(centroids, vecs[e.rng.Intn(len(vecs))])
			continue
		}

		target := e.rng.Float64() * total
		var cum float64
		chosen := len(vecs) - 1
		for i, d2 := range dist2 {
			cum += d2
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, vecs[chosen])
	}
	return centroids
}

// silhouette computes the mean silhouette coefficient. sample > 0 bounds
// the computation to that many uniformly drawn points; 0 scores everyone.
func (e *ClusterEngine) silhouette(vecs []vectors.Vector, assign []int, k int, sample int) float64 {
	n := len(vecs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if sample > 0 && sample < n {
		e.rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		idx = idx[:sample]
	}

	clusterSizes := make([]int, k)
	for _, a := range assign {
		clusterSizes[a]++
	}

	var total float64
	var scored int
	for _, i := range idx {
		own := assign[i]
		if clusterSizes[own] < 2 {
			// s is undefined for singletons; score them 0.
			scored++
			continue
		}

		// Mean distance to each cluster.
		sums := make([]float64, k)
		for j, v := range vecs {
			if j == i {
				continue
			}
			sums[assign[j]] += vectors.Euclidean(vecs[i], v)
		}

		a := sums[own] / float64(clusterSizes[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || clusterSizes[c] == 0 {
				continue
			}
			if m := sums[c] / float64(clusterSizes[c]); m < b {
				b = m
			}
		}
		if math.IsInf(b, 1) {
			scored++
			continue
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
		scored++
	}

	if scored == 0 {
		return 0
	}
	return total / float64(scored)
}

// filterOutliers drops members whose centroid distance exceeds
// mean + stdDevs·stddev of their cluster's distance distribution. Dropped
// members are not reassigned anywhere.
func filterOutliers(vecs []vectors.Vector, centroid vectors.Vector, memberIdx []int, stdDevs float64) (survivors, dropped []int) {
	dists := make([]float64, len(memberIdx))
	var mean float64
	for i, idx := range memberIdx {
		dists[i] = vectors.Euclidean(vecs[idx], centroid)
		mean += dists[i]
	}
	mean /= float64(len(memberIdx))

	var variance float64
	for _, d := range dists {
		variance += (d - mean) * (d - mean)
	}
	stddev := math.Sqrt(variance / float64(len(memberIdx)))

	threshold := mean + stdDevs*stddev
	for i, idx := range memberIdx {
		if dists[i] > threshold {
			dropped = append(dropped, idx)
		} else {
			survivors = append(survivors, idx)
		}
	}
	return survivors, dropped
}

func nearestCentroid(v vectors.Vector, centroids []vectors.Vector) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := vectors.Euclidean(v, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// farthestPoint finds the point farthest from its assigned centroid, used
// to reseed emptied clusters.
func farthestPoint(vecs []vectors.Vector, centroids []vectors.Vector, assign []int) int {
	best := 0
	bestDist := -1.0
	for i, v := range vecs {
		if d := vectors.Euclidean(v, centroids[assign[i]]); d > bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// silhouetteBand maps a score to its interpretation for logging. Scores in
// the weak band are expected for multidisciplinary populations.
func silhouetteBand(s float64) string {
	switch {
	case s >= 0.50:
		return "strong"
	case s >= 0.35:
		return "moderate"
	case s >= 0.20:
		return "weak"
	default:
		return "poor"
	}
}

// keywordStopwords are tokens that dominate professional profile text
// without describing a sub-community. Tokens under the minimum length are
// already dropped, so only longer fillers need listing.
var keywordStopwords = map[string]bool{
	"about": true, "across": true, "after": true, "background": true,
	"being": true, "between": true, "building": true, "career": true,
	"currently": true, "every": true, "experience": true, "experienced": true,
	"expertise": true, "field": true, "focus": true, "focused": true,
	"helping": true, "include": true, "including": true, "interest": true,
	"interested": true, "interests": true, "looking": true, "multiple": true,
	"other": true, "others": true, "passionate": true, "people": true,
	"professional": true, "really": true, "several": true, "skills": true,
	"spent": true, "strong": true, "their": true, "there": true,
	"these": true, "things": true, "through": true, "various": true,
	"where": true, "which": true, "while": true, "working": true,
	"worked": true, "would": true, "years": true,
}

// extractKeywords pools text, tokenizes to lowercase alphabetic tokens,
// drops stopwords and short tokens, and returns the top maxKeywords by
// frequency. Frequency ties break alphabetically for determinism.
func extractKeywords(pool []string, maxKeywords, minLength int) []string {
	counts := make(map[string]int)
	for _, text := range pool {
		var token strings.Builder
		flush := func() {
			if token.Len() >= minLength {
				w := token.String()
				if !keywordStopwords[w] {
					counts[w]++
				}
			}
			token.Reset()
		}
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				token.WriteRune(r)
			} else {
				flush()
			}
		}
		flush()
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}
