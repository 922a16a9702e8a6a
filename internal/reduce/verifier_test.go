package reduce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeEncoder struct {
	vecs map[string][]float32
	err  error
}

func (f *fakeEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vecs[t]
		if !ok {
			return nil, fmt.Errorf("no stub vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

type fakeJudge struct {
	judgment SemanticJudgment
	err      error
	delay    time.Duration

	mu         sync.Mutex
	calls      int
	inFlight   int
	maxInUse   int
	seenTextsA []string
}

func (f *fakeJudge) Judge(ctx context.Context, textA, textB, articleRef string) (SemanticJudgment, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInUse {
		f.maxInUse = f.inFlight
	}
	f.seenTextsA = append(f.seenTextsA, textA)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.err != nil {
		return SemanticJudgment{}, f.err
	}
	return f.judgment, nil
}

func TestEscalationBoundaryInclusive(t *testing.T) {
	v := NewVerifier(nil, nil, DefaultConfig())
	if !v.escalates(0.70) {
		t.Fatal("similarity exactly at the threshold must escalate")
	}
	if v.escalates(0.699) {
		t.Fatal("similarity below the threshold must not escalate")
	}
	if !v.escalates(0.71) {
		t.Fatal("similarity above the threshold must escalate")
	}
}

func TestVerifyEscalatesOnlyAboveThreshold(t *testing.T) {
	passage := "De kosten van gedwongen evacuatie worden voor maximaal 30 dagen vergoed."
	near := "Evacuatiekosten worden maximaal 30 dagen vergoed."
	far := "Premiebetaling geschiedt per kwartaal."
	enc := &fakeEncoder{vecs: map[string][]float32{
		passage: {1, 0},
		near:    {1, 0},
		far:     {0, 1},
	}}
	judge := &fakeJudge{judgment: SemanticJudgment{IsSameMeaning: true, Explanation: "same coverage", Confidence: 0.9}}
	v := NewVerifier(enc, judge, DefaultConfig())

	candidates := []*Cluster{
		{RepresentativeText: near, NormalizedKey: near, TotalCount: 3},
		{RepresentativeText: far, NormalizedKey: far, TotalCount: 1},
	}
	var stats Stats
	results, err := v.Verify(context.Background(), candidates, SplitPassages(passage), &stats)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Escalated || results[0].Judgment == nil {
		t.Fatalf("near candidate must be escalated and judged, got %+v", results[0])
	}
	if results[0].Judgment.MatchingArticle != "artikel 1" {
		t.Fatalf("judgment must carry the passage article, got %q", results[0].Judgment.MatchingArticle)
	}
	if results[1].Escalated || results[1].Judgment != nil {
		t.Fatalf("far candidate must not be escalated, got %+v", results[1])
	}
	if judge.calls != 1 {
		t.Fatalf("judge called %d times, want 1", judge.calls)
	}
	if stats.SemanticCalls != 1 || stats.SemanticFallbacks != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.EmbeddingCalls != 2 {
		t.Fatalf("embedding calls=%d, want 2 (passages + candidates)", stats.EmbeddingCalls)
	}
}

func TestVerifyJudgeFailureDegradesToFallback(t *testing.T) {
	text := "Evacuatiekosten worden maximaal 30 dagen vergoed."
	passage := "De kosten van gedwongen evacuatie worden vergoed."
	enc := &fakeEncoder{vecs: map[string][]float32{text: {1, 0}, passage: {1, 0}}}
	judge := &fakeJudge{err: errors.New("model overloaded")}
	v := NewVerifier(enc, judge, DefaultConfig())

	var stats Stats
	results, err := v.Verify(context.Background(),
		[]*Cluster{{RepresentativeText: text, NormalizedKey: text, TotalCount: 1}},
		SplitPassages(passage), &stats)
	if err != nil {
		t.Fatalf("a failing judge must not fail the batch: %v", err)
	}
	j := results[0].Judgment
	if j == nil {
		t.Fatal("expected a fallback judgment")
	}
	if j.IsSameMeaning || j.Confidence != 0.0 {
		t.Fatalf("fallback must be a zero-confidence negative, got %+v", j)
	}
	if !strings.Contains(j.Explanation, "model overloaded") {
		t.Fatalf("explanation=%q", j.Explanation)
	}
	if stats.SemanticFallbacks != 1 {
		t.Fatalf("fallbacks=%d, want 1", stats.SemanticFallbacks)
	}
}

func TestVerifyEncoderFailureSkipsSemanticScreen(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("quota exceeded")}
	judge := &fakeJudge{}
	v := NewVerifier(enc, judge, DefaultConfig())

	var stats Stats
	results, err := v.Verify(context.Background(),
		[]*Cluster{{RepresentativeText: "tekst", NormalizedKey: "tekst"}},
		[]Passage{{Article: "artikel 1", Text: "referentie"}}, &stats)
	if err != nil {
		t.Fatalf("an encoder failure must degrade, not fault: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if !strings.Contains(stats.SemanticStatus, "embedding unavailable") {
		t.Fatalf("semantic status=%q", stats.SemanticStatus)
	}
	if judge.calls != 0 {
		t.Fatalf("judge must not be called, got %d calls", judge.calls)
	}
}

type truncatingEncoder struct{}

func (truncatingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for range texts[:len(texts)-1] {
		out = append(out, []float32{1, 0})
	}
	return out, nil
}

func TestVerifyShortVectorBatchSkipsSemanticScreen(t *testing.T) {
	// An encoder that silently drops vectors must degrade like an encode
	// error, not index out of range.
	judge := &fakeJudge{}
	v := NewVerifier(truncatingEncoder{}, judge, DefaultConfig())

	var stats Stats
	results, err := v.Verify(context.Background(),
		[]*Cluster{
			{RepresentativeText: "eerste clausule", NormalizedKey: "eerste clausule"},
			{RepresentativeText: "tweede clausule", NormalizedKey: "tweede clausule"},
		},
		[]Passage{{Article: "artikel 1", Text: "referentie"}}, &stats)
	if err != nil {
		t.Fatalf("a short vector batch must degrade, not fault: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if !strings.Contains(stats.SemanticStatus, "embedding unavailable") {
		t.Fatalf("semantic status=%q", stats.SemanticStatus)
	}
	if judge.calls != 0 {
		t.Fatalf("judge must not be called, got %d calls", judge.calls)
	}
}

func TestVerifyBoundsJudgeConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentJudgments = 2

	vecs := map[string][]float32{"referentie clausule": {1, 0}}
	var candidates []*Cluster
	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("kandidaat clausule %d", i)
		vecs[text] = []float32{1, 0}
		candidates = append(candidates, &Cluster{RepresentativeText: text, NormalizedKey: text})
	}
	judge := &fakeJudge{delay: 10 * time.Millisecond, judgment: SemanticJudgment{IsSameMeaning: false, Confidence: 0.9}}
	v := NewVerifier(&fakeEncoder{vecs: vecs}, judge, cfg)

	var stats Stats
	if _, err := v.Verify(context.Background(), candidates,
		[]Passage{{Article: "artikel 1", Text: "referentie clausule"}}, &stats); err != nil {
		t.Fatal(err)
	}
	if judge.calls != 8 {
		t.Fatalf("judge called %d times, want 8", judge.calls)
	}
	if judge.maxInUse > cfg.MaxConcurrentJudgments {
		t.Fatalf("observed %d concurrent judge calls, limit is %d", judge.maxInUse, cfg.MaxConcurrentJudgments)
	}
}

func TestSplitPassages(t *testing.T) {
	text := "Artikel over brand.\nTweede regel.\n\nArtikel over evacuatie.\r\n\r\nArtikel over diefstal.\n\n\n"
	passages := SplitPassages(text)
	if len(passages) != 3 {
		t.Fatalf("got %d passages, want 3", len(passages))
	}
	if passages[0].Article != "artikel 1" || passages[2].Article != "artikel 3" {
		t.Fatalf("unexpected labels %q / %q", passages[0].Article, passages[2].Article)
	}
	if passages[0].Text != "Artikel over brand.\nTweede regel." {
		t.Fatalf("passage 1 = %q", passages[0].Text)
	}
}
