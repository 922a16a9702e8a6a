package reduce

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// MatchCluster scores one cluster's lexical coverage against the normalized
// reference corpus. It returns ok=false when the lexical evidence alone does
// not support a redundancy verdict; such clusters remain candidates for
// semantic verification.
//
// Short texts (below ShortTextLimit normalized runes) are first checked for
// direct substring containment, which is trusted fully. Everything else goes
// through the sliding phrase window: a window of PhraseTokens consecutive
// tokens counts as matched when its tokens appear in document order in the
// reference token stream (a window token may sit inside a longer corpus
// token, so "max" matches "maximaal"), and the matched/total fraction is the
// coverage ratio. Texts with fewer than PhraseTokens tokens carry too little
// signal and are skipped.
func MatchCluster(c *Cluster, refCorpus string, cfg Config) (MatchVerdict, bool) {
	text := c.NormalizedKey
	if len([]rune(text)) < cfg.ShortTextLimit {
		if strings.Contains(refCorpus, text) {
			return MatchVerdict{
				Cluster:       c,
				Reason:        "Direct match (short text)",
				Tier:          TierHigh,
				CoverageRatio: 1.0,
			}, true
		}
	}

	tokens := strings.Fields(text)
	if len(tokens) < cfg.PhraseTokens {
		return MatchVerdict{}, false
	}
	corpusTokens := strings.Fields(refCorpus)

	matched, total := 0, 0
	for i := 0; i+cfg.PhraseTokens <= len(tokens); i++ {
		total++
		if phraseCovered(tokens[i:i+cfg.PhraseTokens], corpusTokens) {
			matched++
		}
	}
	coverage := float64(matched) / float64(total)
	if coverage <= cfg.CoverageThreshold {
		return MatchVerdict{}, false
	}

	tier := TierMedium
	if coverage >= cfg.HighTierBoundary {
		tier = TierHigh
	}
	return MatchVerdict{
		Cluster:       c,
		Reason:        fmt.Sprintf("Content overlap: %d%%", int(math.Round(coverage*100))),
		Tier:          tier,
		CoverageRatio: coverage,
	}, true
}

// phraseCovered reports whether the window's tokens occur as an in-order
// subsequence of the corpus token stream. Scattered or reversed occurrences
// of the same tokens do not count; wording variants that only extend a token
// ("maximaal" for "max") do.
func phraseCovered(window []string, corpusTokens []string) bool {
	ci := 0
	for _, tok := range window {
		for ci < len(corpusTokens) && !strings.Contains(corpusTokens[ci], tok) {
			ci++
		}
		if ci == len(corpusTokens) {
			return false
		}
		ci++
	}
	return true
}

// SortVerdicts orders a batch by confidence tier, then numeric frequency,
// both descending. Tier names must not be compared lexicographically.
func SortVerdicts(verdicts []MatchVerdict) {
	sort.SliceStable(verdicts, func(i, j int) bool {
		ri, rj := tierRank(verdicts[i].Tier), tierRank(verdicts[j].Tier)
		if ri != rj {
			return ri < rj
		}
		return verdicts[i].Cluster.TotalCount > verdicts[j].Cluster.TotalCount
	})
}
