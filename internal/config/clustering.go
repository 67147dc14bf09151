package config

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ClusteringConfig holds the tunables of the clustering engine and the
// similarity search. Loaded from YAML and hot-reloaded on file change so a
// threshold can be adjusted without restarting the server.
type ClusteringConfig struct {
	// MinPopulation is the hard floor of eligible profiles per scope.
	MinPopulation int `yaml:"min_population"`

	// KMin/KMax bound the candidate range for adaptive k selection.
	KMin int `yaml:"k_min"`
	KMax int `yaml:"k_max"`

	// MaxIterations limits k-means convergence iterations per candidate.
	MaxIterations int `yaml:"max_iterations"`

	// SilhouetteSample bounds the O(n²) silhouette computation during the
	// k search phase. The winning k is rescored on the full population.
	SilhouetteSample int `yaml:"silhouette_sample"`

	// OutlierStdDevs: members beyond mean + this·stddev of their cluster's
	// centroid-distance distribution are dropped.
	OutlierStdDevs float64 `yaml:"outlier_std_devs"`

	// MinClusterSize discards clusters smaller than this after filtering.
	MinClusterSize int `yaml:"min_cluster_size"`

	// Keyword extraction
	KeywordsExtracted int `yaml:"keywords_extracted"`
	KeywordsStored    int `yaml:"keywords_stored"`
	MinKeywordLength  int `yaml:"min_keyword_length"`

	// Similarity search
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CandidateFetchLimit int     `yaml:"candidate_fetch_limit"`
	ResultLimit         int     `yaml:"result_limit"`
}

// DefaultClusteringConfig returns the production defaults.
func DefaultClusteringConfig() ClusteringConfig {
	return ClusteringConfig{
		MinPopulation:       15,
		KMin:                6,
		KMax:                10,
		MaxIterations:       100,
		SilhouetteSample:    100,
		OutlierStdDevs:      1.5,
		MinClusterSize:      3,
		KeywordsExtracted:   5,
		KeywordsStored:      3,
		MinKeywordLength:    5,
		SimilarityThreshold: 0.70,
		CandidateFetchLimit: 50,
		ResultLimit:         30,
	}
}

func (c *ClusteringConfig) validate() error {
	if c.KMin < 2 || c.KMax < c.KMin {
		return fmt.Errorf("invalid k range [%d, %d]", c.KMin, c.KMax)
	}
	if c.MinPopulation < c.KMax {
		return fmt.Errorf("min_population %d must be >= k_max %d", c.MinPopulation, c.KMax)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %.2f out of range", c.SimilarityThreshold)
	}
	if c.MinClusterSize < 1 {
		return fmt.Errorf("min_cluster_size %d must be positive", c.MinClusterSize)
	}
	return nil
}

// ClusteringConfigStore serves the current clustering config and watches the
// backing YAML file for changes.
type ClusteringConfigStore struct {
	mu      sync.RWMutex
	current ClusteringConfig
	path    string
	watcher *fsnotify.Watcher
}

// NewClusteringConfigStore loads the YAML at path, falling back to defaults
// when path is empty or unreadable.
func NewClusteringConfigStore(path string) *ClusteringConfigStore {
	s := &ClusteringConfigStore{
		current: DefaultClusteringConfig(),
		path:    path,
	}

	if path == "" {
		return s
	}

	if err := s.reload(); err != nil {
		log.Printf("⚠️ [CLUSTER-CONFIG] Using defaults, failed to load %s: %v", path, err)
	}
	return s
}

// Get returns a copy of the current config.
func (s *ClusteringConfigStore) Get() ClusteringConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch starts watching the config file for changes. No-op when no path is
// configured. Call Close to stop the watcher.
func (s *ClusteringConfigStore) Watch() error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := s.reload(); err != nil {
						log.Printf("⚠️ [CLUSTER-CONFIG] Reload failed, keeping previous config: %v", err)
					} else {
						log.Printf("🔄 [CLUSTER-CONFIG] Reloaded clustering config from %s", s.path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ [CLUSTER-CONFIG] Watcher error: %v", err)
			}
		}
	}()

	log.Printf("👀 [CLUSTER-CONFIG] Watching %s for changes", s.path)
	return nil
}

// Close stops the file watcher.
func (s *ClusteringConfigStore) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *ClusteringConfigStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Unknown keys fall back to defaults, partial files are fine.
	cfg := DefaultClusteringConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}
