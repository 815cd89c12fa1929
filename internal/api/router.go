// Package api assembles the HTTP surface of the ingestion service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/api/handlers"
	"github.com/dvloznov/ledger-ingest/internal/api/middleware"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 32 << 20

// Deps are the collaborators the routes need.
type Deps struct {
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Refs      handlers.ReferenceLister
	Recorder  runs.Recorder
	Log       zerolog.Logger
}

func methodOnly(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		fn(w, r)
	}
}

// NewRouter registers every route and wraps them in the middleware chain.
func NewRouter(d Deps) http.Handler {
	recorder := d.Recorder
	if recorder == nil {
		recorder = runs.NopRecorder{}
	}

	transactionsHandler := handlers.NewTransactionsHandler(d.Publisher, d.Refs)
	jobsHandler := handlers.NewJobsHandler(d.JobStore)
	runsHandler := handlers.NewRunsHandler(recorder)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/transactions/bulk", methodOnly(http.MethodPost, transactionsHandler.BulkIngest))
	mux.HandleFunc("/api/transactions/bulk-delete", methodOnly(http.MethodPost, transactionsHandler.BulkDelete))
	mux.HandleFunc("/api/reference-numbers", methodOnly(http.MethodGet, transactionsHandler.ReferenceNumbers))

	mux.HandleFunc("/api/jobs", methodOnly(http.MethodGet, jobsHandler.ListJobs))
	mux.HandleFunc("/api/jobs/", methodOnly(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	}))

	mux.HandleFunc("/api/runs", methodOnly(http.MethodGet, runsHandler.ListRuns))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.Recovery(d.Log)(
		middleware.RequestID(
			middleware.Logger(d.Log)(
				middleware.CORS(
					middleware.MaxBody(MaxBodyBytes)(mux),
				),
			),
		),
	)
}
