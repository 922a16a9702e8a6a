package reduce

import "testing"

func TestGroupEntriesCollapsesVariants(t *testing.T) {
	entries := []RawEntry{
		{Text: "Schade door brand vergoed.", SourceRef: "row-1"},
		{Text: "schade door brand vergoed", SourceRef: "row-2"},
		{Text: "  Schade, door brand vergoed!  ", SourceRef: "row-3"},
		{Text: "Kosten evacuatie: max 30 dagen vergoed.", SourceRef: "row-4"},
	}
	groups, processed, skipped := GroupEntries(entries, MinEntryChars)
	if processed != 4 || skipped != 0 {
		t.Fatalf("processed=%d skipped=%d, want 4/0", processed, skipped)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	g, ok := groups["schade door brand vergoed"]
	if !ok {
		t.Fatal("missing group for fire-damage key")
	}
	if g.Count != 3 {
		t.Fatalf("count=%d, want 3", g.Count)
	}
	if g.OriginalText != "Schade door brand vergoed." {
		t.Fatalf("canonical text must be first-seen, got %q", g.OriginalText)
	}
	if len(g.SampleRefs) != 3 || g.SampleRefs[0] != "row-1" {
		t.Fatalf("unexpected sample refs %v", g.SampleRefs)
	}
}

func TestGroupEntriesSkipsNoise(t *testing.T) {
	entries := []RawEntry{
		{Text: "ok"},
		{Text: "   "},
		{Text: "!!!???"},
		{Text: "Een geldige clausule over brand."},
	}
	groups, processed, skipped := GroupEntries(entries, MinEntryChars)
	if processed != 1 || skipped != 3 {
		t.Fatalf("processed=%d skipped=%d, want 1/3", processed, skipped)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
}

func TestGroupEntriesCountConservation(t *testing.T) {
	entries := []RawEntry{
		{Text: "Kosten evacuatie: max 30 dagen vergoed."},
		{Text: "Kosten evacuatie max 30 dagen vergoed"},
		{Text: "Schade door brand vergoed."},
		{Text: "x"},
	}
	groups, processed, skipped := GroupEntries(entries, MinEntryChars)
	sum := 0
	for _, g := range groups {
		sum += g.Count
	}
	if sum != processed {
		t.Fatalf("group counts sum to %d, processed is %d", sum, processed)
	}
	if processed+skipped != len(entries) {
		t.Fatalf("processed+skipped=%d, want %d", processed+skipped, len(entries))
	}
}

func TestGroupEntriesCapsSampleRefs(t *testing.T) {
	entries := make([]RawEntry, MaxSampleRefs+3)
	for i := range entries {
		entries[i] = RawEntry{Text: "Schade door brand vergoed.", SourceRef: "row"}
	}
	groups, _, _ := GroupEntries(entries, MinEntryChars)
	g := groups["schade door brand vergoed"]
	if g == nil {
		t.Fatal("missing group")
	}
	if len(g.SampleRefs) != MaxSampleRefs {
		t.Fatalf("got %d refs, want cap %d", len(g.SampleRefs), MaxSampleRefs)
	}
}
