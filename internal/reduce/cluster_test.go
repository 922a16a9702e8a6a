package reduce

import "testing"

func groupsFromEntries(t *testing.T, entries []RawEntry) map[string]*ExactGroup {
	t.Helper()
	groups, _, _ := GroupEntries(entries, MinEntryChars)
	return groups
}

func TestBuildClustersMergesNearDuplicates(t *testing.T) {
	groups := groupsFromEntries(t, []RawEntry{
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten gedwongen evacuatie. Max 30 dagen vergoed."},
		{Text: "Schade door brand vergoed."},
	})
	clusters := BuildClusters(groups, DefaultConfig())
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	// Sorted by total count descending, so the merged pair comes first.
	c := clusters[0]
	if c.TotalCount != 2 {
		t.Fatalf("merged cluster count=%d, want 2", c.TotalCount)
	}
	if c.NormalizedKey != "kosten gedwongen evacuatie max 30 dagen vergoed" {
		t.Fatalf("representative must come from the longest key, got %q", c.NormalizedKey)
	}
	if c.RepresentativeText != "Kosten gedwongen evacuatie. Max 30 dagen vergoed." {
		t.Fatalf("unexpected representative %q", c.RepresentativeText)
	}
	if len(c.Variations) != 2 {
		t.Fatalf("got %d variations, want 2", len(c.Variations))
	}
}

func TestBuildClustersRepresentativeNeverReassigned(t *testing.T) {
	groups := groupsFromEntries(t, []RawEntry{
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten gedwongen evacuatie. Max 30 dagen vergoed."},
	})
	clusters := BuildClusters(groups, DefaultConfig())
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	// The shorter variant is three times as frequent, but the longest key
	// opened the cluster and keeps the representative.
	if clusters[0].NormalizedKey != "kosten gedwongen evacuatie max 30 dagen vergoed" {
		t.Fatalf("representative reassigned: %q", clusters[0].NormalizedKey)
	}
	if clusters[0].TotalCount != 4 {
		t.Fatalf("count=%d, want 4", clusters[0].TotalCount)
	}
}

func TestBuildClustersCountConservation(t *testing.T) {
	entries := []RawEntry{
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten gedwongen evacuatie. Max 30 dagen vergoed."},
		{Text: "Schade door brand vergoed."},
		{Text: "Schade door brand vergoed."},
		{Text: "Diefstal uit de woning wordt vergoed."},
	}
	groups := groupsFromEntries(t, entries)
	want := 0
	for _, g := range groups {
		want += g.Count
	}
	for _, strategy := range []ClusterStrategy{StrategyGreedyStar, StrategyConnectedComponents} {
		cfg := DefaultConfig()
		cfg.ClusterStrategy = strategy
		got := 0
		for _, c := range BuildClusters(groups, cfg) {
			got += c.TotalCount
		}
		if got != want {
			t.Fatalf("%s: cluster counts sum to %d, groups sum to %d", strategy, got, want)
		}
	}
}

func TestBuildClustersSortedByFrequency(t *testing.T) {
	groups := groupsFromEntries(t, []RawEntry{
		{Text: "Diefstal uit de woning wordt vergoed."},
		{Text: "Schade door brand vergoed."},
		{Text: "Schade door brand vergoed."},
		{Text: "Schade door brand vergoed."},
	})
	clusters := BuildClusters(groups, DefaultConfig())
	for i := 1; i < len(clusters); i++ {
		if clusters[i-1].TotalCount < clusters[i].TotalCount {
			t.Fatalf("clusters not sorted by frequency: %d before %d",
				clusters[i-1].TotalCount, clusters[i].TotalCount)
		}
	}
}

func TestBuildClustersStrategiesAgreeOnSimplePartition(t *testing.T) {
	groups := groupsFromEntries(t, []RawEntry{
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten gedwongen evacuatie. Max 30 dagen vergoed."},
		{Text: "Schade door brand vergoed."},
	})
	star := DefaultConfig()
	comp := DefaultConfig()
	comp.ClusterStrategy = StrategyConnectedComponents
	a, b := BuildClusters(groups, star), BuildClusters(groups, comp)
	if len(a) != len(b) {
		t.Fatalf("strategies disagree: %d vs %d clusters", len(a), len(b))
	}
	for i := range a {
		if a[i].NormalizedKey != b[i].NormalizedKey || a[i].TotalCount != b[i].TotalCount {
			t.Fatalf("cluster %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
