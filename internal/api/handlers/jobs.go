package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/isony10/EntryChecker/internal/api/middleware"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/jobs"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/rs/zerolog"
)

// JobsHandler handles background voucher review jobs.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.Store
	input     journalInput
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.Store, storage gcs.Store, cols journal.Columns, maxMemory int64, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		input:     journalInput{storage: storage, maxMemory: maxMemory, columns: cols},
		log:       log,
	}
}

func (h *JobsHandler) available(w http.ResponseWriter) bool {
	if h.publisher == nil || h.store == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Background jobs are not enabled")
		return false
	}
	return true
}

// EnqueueReview handles POST /api/coach/vouchers/jobs
func (h *JobsHandler) EnqueueReview(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	if err := h.input.parseForm(r); err != nil {
		writeFailure(w, err)
		return
	}
	table, source, err := h.input.read(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	ledger := h.input.ledger(table)
	job := &jobs.ReviewJob{Source: source, Rows: ledger.Len(), Ledger: ledger}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		reqLog := logger.FromContextOr(r.Context(), h.log)
		reqLog.Error().Err(err).Msg("Failed to enqueue review job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue review job")
		return
	}
	jobID := job.JobID

	reqLog := logger.FromContextOr(r.Context(), h.log)
	reqLog.Info().Str("job_id", jobID).Str("source", source).Msg("Review job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(jobs.StatusPending),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !h.available(w) {
		return
	}
	job, err := h.store.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		reqLog := logger.FromContextOr(r.Context(), h.log)
		reqLog.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	query := r.URL.Query()
	filter := jobs.Filter{Status: jobs.Status(query.Get("status"))}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		reqLog := logger.FromContextOr(r.Context(), h.log)
		reqLog.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
