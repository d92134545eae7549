package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/isony10/EntryChecker/internal/api/middleware"
	"github.com/isony10/EntryChecker/internal/audit"
	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/jobs"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/rs/zerolog"
)

// Deps are the services the HTTP layer needs. Storage, Publisher and JobStore
// may be nil; the endpoints that need them then answer 503.
type Deps struct {
	Analyzer  *audit.Analyzer
	Coach     *coach.Coach
	Reviewer  *coach.Reviewer
	Storage   gcs.Store
	Publisher jobs.Publisher
	JobStore  jobs.Store
	// Columns are the header aliases used to read journals for review. Nil
	// means the defaults; the Analyzer carries its own.
	Columns journal.Columns
	// MaxMemory is the in-memory part of multipart parsing; the rest spills to disk.
	MaxMemory int64
	Log       zerolog.Logger
}

// NewRouter registers every endpoint on a new mux.
func NewRouter(d Deps) *http.ServeMux {
	if d.MaxMemory <= 0 {
		d.MaxMemory = 32 << 20
	}

	analyze := NewAnalyzeHandler(d.Analyzer, d.Storage, d.MaxMemory, d.Log)
	coaching := NewCoachHandler(d.Coach, d.Reviewer, d.Storage, d.Columns, d.MaxMemory, d.Log)
	jobsHandler := NewJobsHandler(d.Publisher, d.JobStore, d.Storage, d.Columns, d.MaxMemory, d.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/analyze", only(http.MethodPost, analyze.Analyze))
	// path used by the bundled web front end
	mux.HandleFunc("/analyze", only(http.MethodPost, analyze.Analyze))
	mux.HandleFunc("/api/coach/entry", only(http.MethodPost, coaching.SuggestEntry))
	mux.HandleFunc("/api/coach/vouchers", only(http.MethodPost, coaching.ReviewVouchers))
	mux.HandleFunc("/api/coach/vouchers/jobs", only(http.MethodPost, jobsHandler.EnqueueReview))
	mux.HandleFunc("/api/rules", only(http.MethodGet, ListRules))

	mux.HandleFunc("/api/jobs", only(http.MethodGet, jobsHandler.ListJobs))
	mux.HandleFunc("/api/jobs/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// ListRules handles GET /api/rules
func ListRules(w http.ResponseWriter, r *http.Request) {
	catalogue := rules.Catalogue()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": catalogue,
		"count": len(catalogue),
	})
}
