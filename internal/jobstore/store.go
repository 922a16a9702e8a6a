// Package jobstore tracks clause-reduction jobs through their lifecycle and
// persists them across restarts.
package jobstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mheijden/clause-reduce/internal/reduce"
)

// Status is a job's lifecycle state. Transitions only move forward:
// queued -> processing -> completed|failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// validNext encodes the allowed forward transitions.
var validNext = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func transitionAllowed(from, to Status) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one clause-reduction run.
type Job struct {
	ID             string       `json:"job_id" db:"job_id"`
	Status         Status       `json:"status" db:"status"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty" db:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty" db:"finished_at"`
	Error          string       `json:"error,omitempty" db:"error"`
	FailedStage    string       `json:"failed_stage,omitempty" db:"failed_stage"`
	Stats          reduce.Stats `json:"stats" db:"-"`
	ReportCSV      string       `json:"-" db:"report_csv"`
	ReportMarkdown string       `json:"-" db:"report_markdown"`
	EntriesPath    string       `json:"-" db:"entries_path"`
	ReferencePath  string       `json:"-" db:"reference_path"`
}

// Store is the job persistence contract. Update mutates a job under the
// store's lock via fn; fn returning an error aborts the update.
type Store interface {
	Create(entriesPath, referencePath string) (Job, error)
	Get(id string) (Job, bool)
	List() []Job
	Update(id string, fn func(*Job) error) (Job, error)
	Close() error
}

// ErrBadTransition is returned through Update when fn moves a job backwards.
type ErrBadTransition struct {
	From, To Status
}

func (e *ErrBadTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// MemoryStore keeps jobs in process memory. It is the runtime core of the
// SQLite store and the whole store in tests and the one-shot CLI.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[string]*Job
	clock  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]*Job{}, clock: time.Now}
}

func (s *MemoryStore) Create(entriesPath, referencePath string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job := &Job{
		ID:            fmt.Sprintf("job-%d", s.nextID),
		Status:        StatusQueued,
		CreatedAt:     s.clock().UTC(),
		EntriesPath:   entriesPath,
		ReferencePath: referencePath,
	}
	s.jobs[job.ID] = job
	return *job, nil
}

func (s *MemoryStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (s *MemoryStore) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) Update(id string, fn func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s not found", id)
	}
	updated := *job
	if err := fn(&updated); err != nil {
		return Job{}, err
	}
	if updated.Status != job.Status && !transitionAllowed(job.Status, updated.Status) {
		return Job{}, &ErrBadTransition{From: job.Status, To: updated.Status}
	}
	*job = updated
	return *job, nil
}

func (s *MemoryStore) Close() error { return nil }

// restore seeds a job loaded from persistence, bypassing transition checks.
func (s *MemoryStore) restore(job Job, numericID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := job
	s.jobs[job.ID] = &copied
	if numericID > s.nextID {
		s.nextID = numericID
	}
}

// MarkProcessing, MarkCompleted and MarkFailed are the transitions the job
// runner uses; they keep timestamp bookkeeping in one place.

func MarkProcessing(st Store, id string, now time.Time) (Job, error) {
	return st.Update(id, func(j *Job) error {
		j.Status = StatusProcessing
		t := now.UTC()
		j.StartedAt = &t
		return nil
	})
}

func MarkCompleted(st Store, id string, now time.Time, stats reduce.Stats, csv, markdown string) (Job, error) {
	return st.Update(id, func(j *Job) error {
		j.Status = StatusCompleted
		t := now.UTC()
		j.FinishedAt = &t
		j.Stats = stats
		j.ReportCSV = csv
		j.ReportMarkdown = markdown
		return nil
	})
}

func MarkFailed(st Store, id string, now time.Time, stage string, cause error) (Job, error) {
	return st.Update(id, func(j *Job) error {
		j.Status = StatusFailed
		t := now.UTC()
		j.FinishedAt = &t
		j.FailedStage = stage
		j.Error = cause.Error()
		return nil
	})
}
