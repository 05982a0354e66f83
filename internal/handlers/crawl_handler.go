package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/submit"
)

// CrawlHandler handles submission, status and result requests
type CrawlHandler struct {
	submitService *submit.Service
	jobs          interfaces.JobStorage
	queue         interfaces.QueueStorage
	logger        arbor.ILogger
}

// NewCrawlHandler creates a crawl handler
func NewCrawlHandler(submitService *submit.Service, jobs interfaces.JobStorage, queue interfaces.QueueStorage, logger arbor.ILogger) *CrawlHandler {
	return &CrawlHandler{
		submitService: submitService,
		jobs:          jobs,
		queue:         queue,
		logger:        logger,
	}
}

type submitRequest struct {
	Name   string             `json:"name,omitempty"`
	Config *models.TaskConfig `json:"config,omitempty"`
}

type submitResponse struct {
	JobID      string `json:"jobId"`
	JobName    string `json:"jobName"`
	StatusURL  string `json:"statusUrl"`
	ResultsURL string `json:"resultsUrl"`
}

// SubmitHandler accepts a single submission: a registered task by name, or an
// ad-hoc config
// POST /crawl
func (h *CrawlHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" && req.Config == nil {
		writeError(w, http.StatusBadRequest, "either name or config is required")
		return
	}

	var (
		sub *submit.Submission
		err error
	)
	if req.Name != "" {
		sub, err = h.submitService.SubmitTask(r.Context(), req.Name)
	} else {
		sub, err = h.submitService.SubmitAdHoc(r.Context(), *req.Config)
	}

	if err != nil {
		if errors.Is(err, submit.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:      sub.JobID,
		JobName:    sub.JobName,
		StatusURL:  statusURL(sub.JobID),
		ResultsURL: resultsURL(sub.JobID),
	})
}

type batchRequest struct {
	Name string `json:"name"`
}

type batchEntry struct {
	ConfigIndex int    `json:"configIndex"`
	JobID       string `json:"jobId"`
	StatusURL   string `json:"statusUrl"`
	ResultsURL  string `json:"resultsUrl"`
}

type batchResponse struct {
	JobName     string       `json:"jobName"`
	ConfigCount int          `json:"configCount"`
	Configs     []batchEntry `json:"configs"`
}

// BatchHandler enqueues every task of a named job
// POST /crawl/batch
func (h *CrawlHandler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	subs, err := h.submitService.SubmitJob(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, submit.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("job", req.Name).Msg("Batch submission failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]batchEntry, 0, len(subs))
	for _, sub := range subs {
		entries = append(entries, batchEntry{
			ConfigIndex: sub.ConfigIndex,
			JobID:       sub.JobID,
			StatusURL:   statusURL(sub.JobID),
			ResultsURL:  resultsURL(sub.JobID),
		})
	}

	writeJSON(w, http.StatusAccepted, batchResponse{
		JobName:     req.Name,
		ConfigCount: len(entries),
		Configs:     entries,
	})
}

type statusResponse struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StatusHandler returns the job record for one submission
// GET /crawl/status/{jobId}
func (h *CrawlHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/crawl/status/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	record, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := statusResponse{
		JobID:     record.ID,
		Status:    string(record.Status),
		CreatedAt: record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Error:     record.Error,
	}
	if record.CompletedAt != nil {
		resp.CompletedAt = record.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	writeJSON(w, http.StatusOK, resp)
}

// ResultsHandler streams the output artifact once the job completes
// GET /crawl/results/{jobId}
func (h *CrawlHandler) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/crawl/results/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	record, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch record.Status {
	case models.JobStatusPending, models.JobStatusRunning:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    string(record.Status),
			"statusUrl": statusURL(jobID),
		})
	case models.JobStatusFailed:
		msg := record.Error
		if msg == "" {
			msg = "job failed"
		}
		writeError(w, http.StatusInternalServerError, msg)
	case models.JobStatusCompleted:
		if record.OutputFile == "" {
			writeError(w, http.StatusInternalServerError, "job completed without an output file")
			return
		}
		f, err := os.Open(record.OutputFile)
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Str("path", record.OutputFile).Msg("Output file unreadable")
			writeError(w, http.StatusInternalServerError, "output file unavailable")
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(record.OutputFile)+`"`)
		http.ServeContent(w, r, filepath.Base(record.OutputFile), record.CreatedAt, f)
	default:
		writeError(w, http.StatusInternalServerError, "unknown job status")
	}
}

// QueueStatsHandler reports queue entry counts by status
// GET /crawl/queue
func (h *CrawlHandler) QueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
