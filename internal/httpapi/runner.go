// Package httpapi exposes the clause-reduction job orchestration over HTTP:
// multipart job submission, status polling, and report downloads.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mheijden/clause-reduce/internal/ingest"
	"github.com/mheijden/clause-reduce/internal/jobstore"
	"github.com/mheijden/clause-reduce/internal/reduce"
)

// Runner executes queued jobs against the pipeline and records the outcome.
// Report artifacts are rendered once at completion and stored on the job so
// downloads never re-run the pipeline.
type Runner struct {
	store     jobstore.Store
	pipeline  *reduce.Pipeline
	extractor ingest.Extractor
	timeout   time.Duration
}

func NewRunner(store jobstore.Store, pipeline *reduce.Pipeline, extractor ingest.Extractor) *Runner {
	return &Runner{
		store:     store,
		pipeline:  pipeline,
		extractor: extractor,
		timeout:   30 * time.Minute,
	}
}

// Execute runs one job to its terminal state. It is meant to run in its own
// goroutine; every failure path ends in a failed job record, never a panic
// or a silently stuck "processing" status.
func (r *Runner) Execute(ctx context.Context, jobID string) {
	job, ok := r.store.Get(jobID)
	if !ok {
		log.Printf("clause-server runner: job %s vanished before execution", jobID)
		return
	}
	if _, err := jobstore.MarkProcessing(r.store, jobID, time.Now()); err != nil {
		log.Printf("clause-server runner: job %s: %v", jobID, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, stage, err := r.run(ctx, job)
	if err != nil {
		log.Printf("clause-server runner: job %s failed at %s: %v", jobID, stage, err)
		if _, err := jobstore.MarkFailed(r.store, jobID, time.Now(), stage, err); err != nil {
			log.Printf("clause-server runner: job %s: record failure: %v", jobID, err)
		}
		return
	}

	var csv strings.Builder
	if err := reduce.WriteCSV(&csv, res.Advice); err != nil {
		if _, err := jobstore.MarkFailed(r.store, jobID, time.Now(), "report", err); err != nil {
			log.Printf("clause-server runner: job %s: record failure: %v", jobID, err)
		}
		return
	}
	markdown := reduce.BuildMarkdown(res)
	if _, err := jobstore.MarkCompleted(r.store, jobID, time.Now(), res.Stats, csv.String(), markdown); err != nil {
		log.Printf("clause-server runner: job %s: record completion: %v", jobID, err)
		return
	}
	log.Printf("clause-server runner: job %s completed, %d advice rows", jobID, len(res.Advice))
}

func (r *Runner) run(ctx context.Context, job jobstore.Job) (reduce.PipelineResult, string, error) {
	f, err := os.Open(job.EntriesPath)
	if err != nil {
		return reduce.PipelineResult{}, "ingest", fmt.Errorf("open entries: %w", err)
	}
	defer f.Close()
	read, err := ingest.ReadEntries(f)
	if err != nil {
		return reduce.PipelineResult{}, "ingest", err
	}
	if len(read.Entries) == 0 {
		return reduce.PipelineResult{}, "ingest", errors.New("no usable entries in upload")
	}

	reference := r.extractor.Extract(job.ReferencePath)
	if strings.TrimSpace(reference) == "" {
		return reduce.PipelineResult{}, "ingest", errors.New("reference document yielded no text")
	}

	res, err := r.pipeline.Run(ctx, read.Entries, reference)
	if err != nil {
		stage := "pipeline"
		var se *reduce.StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		return reduce.PipelineResult{}, stage, err
	}
	res.Stats.RowsSkipped += read.Malformed
	return res, "", nil
}
