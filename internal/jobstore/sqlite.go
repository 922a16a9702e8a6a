package jobstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mheijden/clause-reduce/internal/reduce"
)

// SQLiteStore persists jobs with write-through semantics: the embedded
// MemoryStore stays authoritative at runtime, every successful mutation is
// mirrored to SQLite, and startup reloads the full job table.
type SQLiteStore struct {
	inner *MemoryStore
	db    *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id          TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'queued',
	created_at      TEXT NOT NULL,
	started_at      TEXT NOT NULL DEFAULT '',
	finished_at     TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	failed_stage    TEXT NOT NULL DEFAULT '',
	stats           TEXT NOT NULL DEFAULT '{}',
	report_csv      TEXT NOT NULL DEFAULT '',
	report_markdown TEXT NOT NULL DEFAULT '',
	entries_path    TEXT NOT NULL DEFAULT '',
	reference_path  TEXT NOT NULL DEFAULT ''
);
`

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{inner: NewMemoryStore(), db: db}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type jobRow struct {
	JobID          string `db:"job_id"`
	Status         string `db:"status"`
	CreatedAt      string `db:"created_at"`
	StartedAt      string `db:"started_at"`
	FinishedAt     string `db:"finished_at"`
	Error          string `db:"error"`
	FailedStage    string `db:"failed_stage"`
	Stats          string `db:"stats"`
	ReportCSV      string `db:"report_csv"`
	ReportMarkdown string `db:"report_markdown"`
	EntriesPath    string `db:"entries_path"`
	ReferencePath  string `db:"reference_path"`
}

func (s *SQLiteStore) loadAll() error {
	var rows []jobRow
	if err := s.db.Select(&rows, `SELECT * FROM jobs`); err != nil && err != sql.ErrNoRows {
		return err
	}
	for _, r := range rows {
		job, numericID, err := jobFromRow(r)
		if err != nil {
			return fmt.Errorf("job %s: %w", r.JobID, err)
		}
		s.inner.restore(job, numericID)
	}
	return nil
}

func jobFromRow(r jobRow) (Job, int64, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Job{}, 0, fmt.Errorf("parse created_at: %w", err)
	}
	job := Job{
		ID:             r.JobID,
		Status:         Status(r.Status),
		CreatedAt:      createdAt,
		Error:          r.Error,
		FailedStage:    r.FailedStage,
		ReportCSV:      r.ReportCSV,
		ReportMarkdown: r.ReportMarkdown,
		EntriesPath:    r.EntriesPath,
		ReferencePath:  r.ReferencePath,
	}
	if r.StartedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, r.StartedAt)
		if err != nil {
			return Job{}, 0, fmt.Errorf("parse started_at: %w", err)
		}
		job.StartedAt = &t
	}
	if r.FinishedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, r.FinishedAt)
		if err != nil {
			return Job{}, 0, fmt.Errorf("parse finished_at: %w", err)
		}
		job.FinishedAt = &t
	}
	if r.Stats != "" && r.Stats != "{}" {
		var stats reduce.Stats
		if err := json.Unmarshal([]byte(r.Stats), &stats); err != nil {
			return Job{}, 0, fmt.Errorf("parse stats: %w", err)
		}
		job.Stats = stats
	}
	numericID, _ := strconv.ParseInt(strings.TrimPrefix(r.JobID, "job-"), 10, 64)
	return job, numericID, nil
}

func (s *SQLiteStore) persist(job Job) error {
	statsJSON, err := json.Marshal(job.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	startedAt, finishedAt := "", ""
	if job.StartedAt != nil {
		startedAt = job.StartedAt.Format(time.RFC3339Nano)
	}
	if job.FinishedAt != nil {
		finishedAt = job.FinishedAt.Format(time.RFC3339Nano)
	}
	_, err = s.db.Exec(`
INSERT INTO jobs (job_id, status, created_at, started_at, finished_at, error,
                  failed_stage, stats, report_csv, report_markdown, entries_path, reference_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
	status = excluded.status,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	error = excluded.error,
	failed_stage = excluded.failed_stage,
	stats = excluded.stats,
	report_csv = excluded.report_csv,
	report_markdown = excluded.report_markdown`,
		job.ID, string(job.Status), job.CreatedAt.Format(time.RFC3339Nano),
		startedAt, finishedAt, job.Error, job.FailedStage, string(statsJSON),
		job.ReportCSV, job.ReportMarkdown, job.EntriesPath, job.ReferencePath)
	if err != nil {
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Create(entriesPath, referencePath string) (Job, error) {
	job, err := s.inner.Create(entriesPath, referencePath)
	if err != nil {
		return Job{}, err
	}
	if err := s.persist(job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *SQLiteStore) Get(id string) (Job, bool) { return s.inner.Get(id) }

func (s *SQLiteStore) List() []Job { return s.inner.List() }

func (s *SQLiteStore) Update(id string, fn func(*Job) error) (Job, error) {
	job, err := s.inner.Update(id, fn)
	if err != nil {
		return Job{}, err
	}
	if err := s.persist(job); err != nil {
		return Job{}, err
	}
	return job, nil
}
