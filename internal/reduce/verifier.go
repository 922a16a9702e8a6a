package reduce

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
)

// Verifier catches redundant clauses that are lexically dissimilar but
// meaning-equivalent. Stage A screens candidates by embedding similarity (a
// cheap filter); Stage B escalates survivors to the semantic judge (the
// expensive authoritative check). Invoking the judge for every candidate
// would be too costly, and embedding similarity alone produces false
// positives near the threshold, hence the two stages.
type Verifier struct {
	encoder Encoder
	judge   SemanticJudge
	cfg     Config
}

func NewVerifier(encoder Encoder, judge SemanticJudge, cfg Config) *Verifier {
	return &Verifier{encoder: encoder, judge: judge, cfg: cfg}
}

// VerifyResult is the verifier's outcome for one candidate cluster.
type VerifyResult struct {
	Cluster        *Cluster
	BestPassage    string
	BestArticle    string
	BestSimilarity float64
	Escalated      bool
	Judgment       *SemanticJudgment
}

// Passage is one reference passage with its article label.
type Passage struct {
	Article string
	Text    string
}

// SplitPassages breaks a reference conditions document into blank-line
// separated passages, labelled artikel 1..N in document order.
func SplitPassages(referenceText string) []Passage {
	blocks := strings.Split(strings.ReplaceAll(referenceText, "\r\n", "\n"), "\n\n")
	out := make([]Passage, 0, len(blocks))
	for _, b := range blocks {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		out = append(out, Passage{Article: fmt.Sprintf("artikel %d", len(out)+1), Text: b})
	}
	return out
}

// Verify screens candidates against the reference passages. A failing
// encoder disables semantic verification for the whole batch (candidates are
// discarded, the condition is surfaced in stats); a failing judge call
// degrades only that candidate to a fallback judgment. Cancellation is
// honored between per-candidate units of work: results collected so far are
// returned alongside ctx.Err().
func (v *Verifier) Verify(ctx context.Context, candidates []*Cluster, passages []Passage, stats *Stats) ([]VerifyResult, error) {
	if len(candidates) == 0 || len(passages) == 0 {
		return nil, nil
	}

	passageTexts := make([]string, len(passages))
	for i, p := range passages {
		passageTexts[i] = truncateRunes(p.Text, MaxJudgeChars)
	}
	stats.EmbeddingCalls++
	passageVecs, err := v.encoder.Encode(ctx, passageTexts)
	if err == nil && len(passageVecs) != len(passageTexts) {
		err = fmt.Errorf("encoder returned %d vectors for %d passages", len(passageVecs), len(passageTexts))
	}
	if err != nil {
		log.Printf("clause-reduce verifier: reference encoding failed, semantic screen skipped: %v", err)
		stats.SemanticStatus = "embedding unavailable: " + err.Error()
		return nil, nil
	}

	candidateTexts := make([]string, len(candidates))
	for i, c := range candidates {
		candidateTexts[i] = truncateRunes(c.RepresentativeText, MaxJudgeChars)
	}
	stats.EmbeddingCalls++
	candidateVecs, err := v.encoder.Encode(ctx, candidateTexts)
	if err == nil && len(candidateVecs) != len(candidateTexts) {
		err = fmt.Errorf("encoder returned %d vectors for %d candidates", len(candidateVecs), len(candidateTexts))
	}
	if err != nil {
		log.Printf("clause-reduce verifier: candidate encoding failed, semantic screen skipped: %v", err)
		stats.SemanticStatus = "embedding unavailable: " + err.Error()
		return nil, nil
	}

	results := make([]VerifyResult, len(candidates))
	escalate := []int{}
	for i, c := range candidates {
		bestIdx, bestSim := -1, math.Inf(-1)
		for pi, pv := range passageVecs {
			if sim := cosine(candidateVecs[i], pv); sim > bestSim {
				bestIdx, bestSim = pi, sim
			}
		}
		results[i] = VerifyResult{
			Cluster:        c,
			BestPassage:    passages[bestIdx].Text,
			BestArticle:    passages[bestIdx].Article,
			BestSimilarity: bestSim,
		}
		if v.escalates(bestSim) {
			results[i].Escalated = true
			escalate = append(escalate, i)
		}
	}

	if err := v.judgeAll(ctx, results, escalate, stats); err != nil {
		return results, err
	}
	return results, nil
}

// escalates applies the Stage A threshold; the boundary is inclusive, so a
// similarity of exactly the threshold still triggers Stage B.
func (v *Verifier) escalates(sim float64) bool {
	return sim >= v.cfg.EmbeddingThreshold
}

// judgeAll runs Stage B with bounded concurrency: the judge is a rate-limited
// external service, and each call carries its own timeout. A timed-out or
// failed call is terminal for that single candidate only.
func (v *Verifier) judgeAll(ctx context.Context, results []VerifyResult, escalate []int, stats *Stats) error {
	if len(escalate) == 0 {
		return nil
	}

	sem := make(chan struct{}, v.cfg.MaxConcurrentJudgments)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, idx := range escalate {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			r := results[i]
			callCtx, cancel := context.WithTimeout(ctx, v.cfg.JudgeTimeout)
			defer cancel()
			judgment, err := v.judge.Judge(callCtx,
				truncateRunes(r.BestPassage, MaxJudgeChars),
				truncateRunes(r.Cluster.RepresentativeText, MaxJudgeChars),
				r.BestArticle)

			mu.Lock()
			defer mu.Unlock()
			stats.SemanticCalls++
			if err != nil {
				log.Printf("clause-reduce verifier: judge failed for %q: %v", r.BestArticle, err)
				stats.SemanticFallbacks++
				judgment = FallbackJudgment(err.Error())
			}
			if judgment.MatchingArticle == "" {
				judgment.MatchingArticle = r.BestArticle
			}
			results[i].Judgment = &judgment
		}(idx)
	}
	wg.Wait()
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
