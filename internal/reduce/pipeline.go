package reduce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mheijden/clause-reduce/internal/textnorm"
)

// StageProgressFn receives human-readable progress per stage. Callers pass
// nil when they do not care.
type StageProgressFn func(stage, message string)

// StageError ties a failure to the pipeline stage that produced it, so job
// records can report which stage failed without string parsing.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PipelineResult carries the final advice plus every intermediate the job
// orchestrator and report builders need.
type PipelineResult struct {
	Clusters []*Cluster       `json:"clusters"`
	Outcomes []ClusterOutcome `json:"-"`
	Advice   []AdviceRow      `json:"advice"`
	Stats    Stats            `json:"stats"`
	Started  time.Time        `json:"started_at"`
	Finished time.Time        `json:"finished_at"`
}

// Pipeline runs the full clause-reduction sequence: group, cluster, match,
// semantically verify, aggregate. Encoder and judge are optional; when either
// is nil the semantic stage is skipped and the stats say so.
type Pipeline struct {
	cfg     Config
	encoder Encoder
	judge   SemanticJudge
	tracer  trace.Tracer
}

func NewPipeline(cfg Config, encoder Encoder, judge SemanticJudge) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	return &Pipeline{
		cfg:     cfg,
		encoder: encoder,
		judge:   judge,
		tracer:  otel.Tracer("clause-reduce/pipeline"),
	}, nil
}

func (p *Pipeline) Run(ctx context.Context, entries []RawEntry, referenceText string) (PipelineResult, error) {
	return p.runWithProgress(ctx, entries, referenceText, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, entries []RawEntry, referenceText string, progress StageProgressFn) (PipelineResult, error) {
	return p.runWithProgress(ctx, entries, referenceText, progress)
}

func (p *Pipeline) runWithProgress(ctx context.Context, entries []RawEntry, referenceText string, progress StageProgressFn) (res PipelineResult, err error) {
	res.Started = time.Now()
	defer func() { res.Finished = time.Now() }()

	if len(entries) == 0 {
		return res, errors.New("no entries to analyze")
	}
	refNorm := textnorm.Normalize(referenceText)
	if strings.TrimSpace(refNorm) == "" {
		return res, errors.New("reference conditions text is empty after normalization")
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("entries", len(entries))))
	defer span.End()

	emit(progress, "group", "Grouping exact duplicates...")
	groups, err := p.group(ctx, entries, &res.Stats)
	if err != nil {
		return res, &StageError{Stage: "group", Err: err}
	}

	emit(progress, "cluster", "Clustering near-duplicates...")
	clusters, err := p.cluster(ctx, groups, &res.Stats)
	if err != nil {
		return res, &StageError{Stage: "cluster", Err: err}
	}
	res.Clusters = clusters

	emit(progress, "match", "Matching clusters against reference conditions...")
	outcomes, candidates, err := p.match(ctx, clusters, refNorm, &res.Stats)
	if err != nil {
		return res, &StageError{Stage: "match", Err: err}
	}

	emit(progress, "verify", "Verifying unmatched clusters semantically...")
	if err := p.verify(ctx, outcomes, candidates, referenceText, &res.Stats); err != nil {
		return res, &StageError{Stage: "verify", Err: err}
	}
	res.Outcomes = outcomes

	emit(progress, "aggregate", "Building advice report...")
	res.Advice = BuildAdvice(outcomes, p.cfg)
	span.SetAttributes(attribute.Int("advice_rows", len(res.Advice)))
	return res, nil
}

func (p *Pipeline) group(ctx context.Context, entries []RawEntry, stats *Stats) (map[string]*ExactGroup, error) {
	_, span := p.tracer.Start(ctx, "pipeline.group")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups, processed, skipped := GroupEntries(entries, p.cfg.MinEntryChars)
	stats.RowsProcessed = processed
	stats.RowsSkipped = skipped
	stats.UniqueKeys = len(groups)
	span.SetAttributes(attribute.Int("unique_keys", len(groups)))
	if len(groups) == 0 {
		return nil, errors.New("every entry was skipped as noise")
	}
	return groups, nil
}

func (p *Pipeline) cluster(ctx context.Context, groups map[string]*ExactGroup, stats *Stats) ([]*Cluster, error) {
	_, span := p.tracer.Start(ctx, "pipeline.cluster")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clusters := BuildClusters(groups, p.cfg)
	stats.Clusters = len(clusters)
	span.SetAttributes(attribute.Int("clusters", len(clusters)))
	return clusters, nil
}

// match scores every cluster lexically. Clusters without a verdict become
// semantic candidates instead of being discarded.
func (p *Pipeline) match(ctx context.Context, clusters []*Cluster, refNorm string, stats *Stats) ([]ClusterOutcome, []*Cluster, error) {
	_, span := p.tracer.Start(ctx, "pipeline.match")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	outcomes := make([]ClusterOutcome, len(clusters))
	var candidates []*Cluster
	for i, c := range clusters {
		outcomes[i] = ClusterOutcome{Cluster: c}
		if v, ok := MatchCluster(c, refNorm, p.cfg); ok {
			verdict := v
			outcomes[i].Verdict = &verdict
			stats.VerdictsEmitted++
			continue
		}
		candidates = append(candidates, c)
	}
	stats.SemanticCandidates = len(candidates)
	span.SetAttributes(
		attribute.Int("verdicts", stats.VerdictsEmitted),
		attribute.Int("candidates", len(candidates)),
	)
	return outcomes, candidates, nil
}

func (p *Pipeline) verify(ctx context.Context, outcomes []ClusterOutcome, candidates []*Cluster, referenceText string, stats *Stats) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.verify")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.encoder == nil || p.judge == nil {
		stats.SemanticStatus = "semantic verification not configured"
		return nil
	}
	if len(candidates) == 0 {
		stats.SemanticStatus = "no candidates for semantic verification"
		return nil
	}

	verifier := NewVerifier(p.encoder, p.judge, p.cfg)
	results, err := verifier.Verify(ctx, candidates, SplitPassages(referenceText), stats)
	if err != nil {
		return err
	}

	byCluster := make(map[*Cluster]*SemanticJudgment, len(results))
	for _, r := range results {
		if r.Judgment != nil {
			byCluster[r.Cluster] = r.Judgment
		}
	}
	for i := range outcomes {
		if j, ok := byCluster[outcomes[i].Cluster]; ok {
			outcomes[i].Judgment = j
		}
	}
	if stats.SemanticStatus == "" {
		stats.SemanticStatus = fmt.Sprintf("verified %d of %d candidates (%d fallbacks)",
			stats.SemanticCalls, len(candidates), stats.SemanticFallbacks)
	}
	return nil
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
