package reduce

import "sort"

// BuildClusters merges exact groups whose keys are lexically near-identical
// into representative clusters, per the configured strategy.
//
// The default greedy star strategy is worst-case O(U²) string comparisons
// over U unique keys, mitigated by a length-ratio prefilter. That is
// acceptable for corpora with keys in the low thousands and is a documented
// performance boundary, not a bug.
func BuildClusters(groups map[string]*ExactGroup, cfg Config) []*Cluster {
	keys := sortedKeys(groups)
	var clusters []*Cluster
	if cfg.ClusterStrategy == StrategyConnectedComponents {
		clusters = componentClusters(keys, groups, cfg)
	} else {
		clusters = starClusters(keys, groups, cfg)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].TotalCount > clusters[j].TotalCount
	})
	return clusters
}

// sortedKeys orders keys by rune length descending so the representative
// text is biased toward the most complete variant; equal lengths fall back
// to lexicographic order so traversal (and thus greedy merging) is
// deterministic.
func sortedKeys(groups map[string]*ExactGroup) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := len([]rune(keys[i])), len([]rune(keys[j]))
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// starClusters is greedy, not transitive: each remaining key is compared
// only against the representative of the cluster currently being opened. A
// key that would match a later representative slightly better is still
// consumed by the first one that clears the threshold.
func starClusters(keys []string, groups map[string]*ExactGroup, cfg Config) []*Cluster {
	processed := make(map[string]bool, len(keys))
	out := []*Cluster{}
	for i, k := range keys {
		if processed[k] {
			continue
		}
		processed[k] = true
		c := newCluster(groups[k])
		for _, k2 := range keys[i+1:] {
			if processed[k2] {
				continue
			}
			if RatioUpperBound(k, k2) < cfg.SimilarityThreshold {
				continue
			}
			if Ratio(k, k2) > cfg.SimilarityThreshold {
				mergeGroup(c, groups[k2])
				processed[k2] = true
			}
		}
		out = append(out, c)
	}
	return out
}

// componentClusters adds an edge for every pair above the threshold and
// merges connected components. Transitive, at the cost of evaluating all
// surviving pairs.
func componentClusters(keys []string, groups map[string]*ExactGroup, cfg Config) []*Cluster {
	parent := make([]int, len(keys))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if RatioUpperBound(keys[i], keys[j]) < cfg.SimilarityThreshold {
				continue
			}
			if Ratio(keys[i], keys[j]) > cfg.SimilarityThreshold {
				union(i, j)
			}
		}
	}

	// keys are length-sorted, so the first member of each component is its
	// longest key and seeds the representative.
	byRoot := map[int]*Cluster{}
	order := []int{}
	for i, k := range keys {
		root := find(i)
		if c, ok := byRoot[root]; ok {
			mergeGroup(c, groups[k])
			continue
		}
		byRoot[root] = newCluster(groups[k])
		order = append(order, root)
	}
	out := make([]*Cluster, 0, len(order))
	for _, root := range order {
		out = append(out, byRoot[root])
	}
	return out
}

func newCluster(g *ExactGroup) *Cluster {
	return &Cluster{
		RepresentativeText: g.OriginalText,
		NormalizedKey:      g.Key,
		TotalCount:         g.Count,
		Variations:         []string{g.OriginalText},
		SampleRefs:         append([]string{}, g.SampleRefs...),
	}
}

func mergeGroup(c *Cluster, g *ExactGroup) {
	c.TotalCount += g.Count
	c.Variations = appendIfMissing(c.Variations, g.OriginalText)
	for _, ref := range g.SampleRefs {
		if len(c.SampleRefs) >= MaxSampleRefs {
			break
		}
		c.SampleRefs = appendIfMissing(c.SampleRefs, ref)
	}
}
