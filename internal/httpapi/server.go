package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mheijden/clause-reduce/internal/jobstore"
)

// ReportPDFRenderer turns report markdown into PDF bytes.
type ReportPDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

type Server struct {
	store     jobstore.Store
	runner    *Runner
	renderer  ReportPDFRenderer
	uploadDir string
	baseCtx   context.Context
}

// NewServer wires the job API. baseCtx bounds background job execution so a
// server shutdown cancels in-flight pipelines.
func NewServer(baseCtx context.Context, store jobstore.Store, runner *Runner, renderer ReportPDFRenderer, uploadDir string) http.Handler {
	s := &Server{
		store:     store,
		runner:    runner,
		renderer:  renderer,
		uploadDir: uploadDir,
		baseCtx:   baseCtx,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/jobs", s.handleJobs)
	mux.HandleFunc("/v1/jobs/", s.handleJob)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"jobs": s.store.List()})
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	entriesPath, err := s.saveUpload(r, "entries")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	referencePath, err := s.saveUpload(r, "reference")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.store.Create(entriesPath, referencePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create job")
		return
	}
	log.Printf("clause-server api: job %s submitted", job.ID)
	go s.runner.Execute(s.baseCtx, job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) saveUpload(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("%s file is required", field)
	}
	defer file.Close()

	dst, err := os.CreateTemp(s.uploadDir, field+"-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", fmt.Errorf("store %s upload", field)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("store %s upload", field)
	}
	return dst.Name(), nil
}

// handleJob serves /v1/jobs/{id}, /v1/jobs/{id}/report and
// /v1/jobs/{id}/report.pdf.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	id, artifact, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	job, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch artifact {
	case "":
		writeJSON(w, http.StatusOK, job)
	case "report":
		s.serveCSV(w, job)
	case "report.pdf":
		s.servePDF(w, r, job)
	default:
		writeError(w, http.StatusNotFound, "unknown artifact")
	}
}

func (s *Server) serveCSV(w http.ResponseWriter, job jobstore.Job) {
	if job.Status != jobstore.StatusCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, report not available", job.Status))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-advies.csv", job.ID))
	_, _ = io.WriteString(w, job.ReportCSV)
}

func (s *Server) servePDF(w http.ResponseWriter, r *http.Request, job jobstore.Job) {
	if job.Status != jobstore.StatusCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, report not available", job.Status))
		return
	}
	if s.renderer == nil {
		writeError(w, http.StatusNotImplemented, "pdf rendering not configured")
		return
	}
	pdf, err := s.renderer.Render(r.Context(), job.ReportMarkdown)
	if err != nil {
		log.Printf("clause-server api: render pdf for %s: %v", job.ID, err)
		writeError(w, http.StatusInternalServerError, "pdf rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-advies.pdf", job.ID))
	_, _ = w.Write(pdf)
}
