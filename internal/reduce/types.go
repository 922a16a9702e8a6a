// Package reduce implements the clause-reduction pipeline: it deduplicates
// and clusters free-text policy clauses, scores each cluster's lexical
// coverage against a reference conditions document, and escalates uncertain
// matches to an embedding screen plus a structured language-model judgment.
// The output is ranked, confidence-scored advice, always subject to human
// review.
package reduce

import (
	"fmt"
	"time"
)

const Disclaimer = "This is automated redundancy advice, not a coverage determination. " +
	"Every flagged clause must be reviewed by a policy specialist before removal."

const (
	DefaultSimilarityThreshold = 0.85
	DefaultCoverageThreshold   = 0.6
	DefaultHighTierBoundary    = 0.8
	DefaultEmbeddingThreshold  = 0.70

	// MinEntryChars is the trimmed length below which a raw entry is noise.
	MinEntryChars = 5
	// ShortTextLimit is the normalized length below which only direct
	// substring matching is trusted.
	ShortTextLimit = 50
	// PhraseTokens is the sliding window width for coverage scoring.
	PhraseTokens = 5
	// MaxSampleRefs caps the source references carried per group/cluster.
	MaxSampleRefs = 5
	// MaxJudgeChars caps each text handed to the semantic judge.
	MaxJudgeChars = 2000
	// SemanticConfidenceFloor is the judgment confidence required before a
	// semantic match may raise a cluster's advice tier.
	SemanticConfidenceFloor = 0.6
)

// ConfidenceTier classifies how certain a redundancy verdict is.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "HIGH"
	TierMedium ConfidenceTier = "MEDIUM"
	TierLow    ConfidenceTier = "LOW"
	TierNone   ConfidenceTier = "NONE"
)

// tierRank orders tiers for sorting: lower rank sorts first (more certain).
// Lexicographic ordering of the tier names is wrong (HIGH < LOW < MEDIUM),
// so all ranking goes through this function.
func tierRank(t ConfidenceTier) int {
	switch t {
	case TierHigh:
		return 0
	case TierMedium:
		return 1
	case TierLow:
		return 2
	default:
		return 3
	}
}

// RawEntry is one free-text occurrence tied to its originating record.
type RawEntry struct {
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
}

// ExactGroup aggregates all raw entries that share one normalized key. The
// first-seen original text is canonical for the key.
type ExactGroup struct {
	Key          string   `json:"key"`
	OriginalText string   `json:"original_text"`
	Count        int      `json:"count"`
	SampleRefs   []string `json:"sample_refs"`
}

// Cluster merges near-duplicate exact groups under one representative text.
// The representative is fixed at creation and never reassigned.
type Cluster struct {
	RepresentativeText string   `json:"representative_text"`
	NormalizedKey      string   `json:"normalized_key"`
	TotalCount         int      `json:"total_count"`
	Variations         []string `json:"variations"`
	SampleRefs         []string `json:"sample_refs"`
}

// MatchVerdict is the redundancy matcher's lexical judgment for one cluster.
type MatchVerdict struct {
	Cluster       *Cluster       `json:"-"`
	Reason        string         `json:"reason"`
	Tier          ConfidenceTier `json:"confidence_tier"`
	CoverageRatio float64        `json:"coverage_ratio"`
}

// SemanticJudgment is the structured verdict on whether two differently
// worded texts mean the same thing. Immutable once constructed.
type SemanticJudgment struct {
	IsSameMeaning   bool    `json:"is_same_meaning"`
	Explanation     string  `json:"explanation"`
	MatchingArticle string  `json:"matching_article,omitempty"`
	Confidence      float64 `json:"confidence"`
	Differences     string  `json:"differences,omitempty"`
	RawResponse     string  `json:"raw_response,omitempty"`
}

// FallbackJudgment converts a terminal judge failure (network, timeout,
// model error) into a safe negative verdict instead of a fault.
func FallbackJudgment(errMsg string) SemanticJudgment {
	return SemanticJudgment{
		IsSameMeaning: false,
		Explanation:   "semantic verification unavailable: " + errMsg,
		Confidence:    0.0,
	}
}

// AdviceRow is one line of the final report.
type AdviceRow struct {
	Frequency  int            `json:"frequency"`
	Text       string         `json:"text"`
	Reason     string         `json:"reason"`
	Confidence ConfidenceTier `json:"confidence"`
}

// Stats carries the intermediate counts the job orchestrator surfaces
// without re-deriving them from pipeline internals.
type Stats struct {
	RowsProcessed      int    `json:"rows_processed"`
	RowsSkipped        int    `json:"rows_skipped"`
	UniqueKeys         int    `json:"unique_keys"`
	Clusters           int    `json:"clusters"`
	VerdictsEmitted    int    `json:"verdicts_emitted"`
	SemanticCandidates int    `json:"semantic_candidates"`
	EmbeddingCalls     int    `json:"embedding_calls"`
	SemanticCalls      int    `json:"semantic_calls"`
	SemanticFallbacks  int    `json:"semantic_fallbacks"`
	SemanticStatus     string `json:"semantic_status"`
}

// ClusterStrategy selects how near-duplicate groups are merged.
type ClusterStrategy string

const (
	// StrategyGreedyStar merges keys into the first (longest-first) cluster
	// whose representative they match. Not transitive: ties and near-ties
	// resolve by traversal order. This is the intentional default trade-off.
	StrategyGreedyStar ClusterStrategy = "greedy_star"
	// StrategyConnectedComponents adds an edge for every pair above the
	// threshold and merges connected components via union-find. Transitive,
	// but strictly more comparisons.
	StrategyConnectedComponents ClusterStrategy = "connected_components"
)

// Config holds the pipeline's tunable thresholds. The defaults come from the
// original domain and are not assumed optimal for other corpora.
type Config struct {
	SimilarityThreshold    float64
	CoverageThreshold      float64
	HighTierBoundary       float64
	EmbeddingThreshold     float64
	MinEntryChars          int
	ShortTextLimit         int
	PhraseTokens           int
	ClusterStrategy        ClusterStrategy
	MaxConcurrentJudgments int
	JudgeTimeout           time.Duration
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:    DefaultSimilarityThreshold,
		CoverageThreshold:      DefaultCoverageThreshold,
		HighTierBoundary:       DefaultHighTierBoundary,
		EmbeddingThreshold:     DefaultEmbeddingThreshold,
		MinEntryChars:          MinEntryChars,
		ShortTextLimit:         ShortTextLimit,
		PhraseTokens:           PhraseTokens,
		ClusterStrategy:        StrategyGreedyStar,
		MaxConcurrentJudgments: 4,
		JudgeTimeout:           60 * time.Second,
	}
}

// Validate rejects configurations the pipeline must not start with.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"similarity_threshold": c.SimilarityThreshold,
		"coverage_threshold":   c.CoverageThreshold,
		"high_tier_boundary":   c.HighTierBoundary,
		"embedding_threshold":  c.EmbeddingThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if c.HighTierBoundary < c.CoverageThreshold {
		return fmt.Errorf("high_tier_boundary (%v) must not be below coverage_threshold (%v)",
			c.HighTierBoundary, c.CoverageThreshold)
	}
	if c.MinEntryChars < 0 {
		return fmt.Errorf("min_entry_chars must be non-negative, got %d", c.MinEntryChars)
	}
	if c.PhraseTokens < 1 {
		return fmt.Errorf("phrase_tokens must be at least 1, got %d", c.PhraseTokens)
	}
	if c.MaxConcurrentJudgments < 1 {
		return fmt.Errorf("max_concurrent_judgments must be at least 1, got %d", c.MaxConcurrentJudgments)
	}
	switch c.ClusterStrategy {
	case StrategyGreedyStar, StrategyConnectedComponents:
	default:
		return fmt.Errorf("unknown cluster strategy %q", c.ClusterStrategy)
	}
	return nil
}

func appendIfMissing(items []string, v string) []string {
	for _, item := range items {
		if item == v {
			return items
		}
	}
	return append(items, v)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
