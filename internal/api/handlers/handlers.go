package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/api/middleware"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"github.com/shopspring/decimal"
)

// MaxBulkSize caps the number of records accepted in one bulk request.
const MaxBulkSize = 20000

// ReferenceLister lists the reference numbers issued in a scope.
type ReferenceLister interface {
	ListReferenceNumbers(ctx context.Context, bankAccountID string, year int) ([]string, error)
}

// transactionRequest is the wire shape of one pending transaction. The date
// accepts YYYY-MM-DD or RFC 3339.
type transactionRequest struct {
	BankAccountID string          `json:"bank_account_id"`
	Date          string          `json:"date"`
	Income        decimal.Decimal `json:"income"`
	Expense       decimal.Decimal `json:"expense"`
	Description   string          `json:"description"`
	Payee         string          `json:"payee"`
	Memo          string          `json:"memo"`
}

func (t transactionRequest) toPending() (domain.PendingTransaction, error) {
	date, err := time.Parse("2006-01-02", t.Date)
	if err != nil {
		date, err = time.Parse(time.RFC3339, t.Date)
		if err != nil {
			return domain.PendingTransaction{}, fmt.Errorf("invalid date %q", t.Date)
		}
	}
	p := domain.PendingTransaction{
		BankAccountID: strings.TrimSpace(t.BankAccountID),
		Date:          date,
		Income:        t.Income,
		Expense:       t.Expense,
		Description:   t.Description,
		Payee:         t.Payee,
		Memo:          t.Memo,
	}
	return p, p.Validate()
}

// TransactionsHandler handles bulk transaction endpoints.
type TransactionsHandler struct {
	publisher jobs.Publisher
	refs      ReferenceLister
	now       func() time.Time
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(publisher jobs.Publisher, refs ReferenceLister) *TransactionsHandler {
	return &TransactionsHandler{
		publisher: publisher,
		refs:      refs,
		now:       time.Now,
	}
}

// BulkIngest handles POST /api/transactions/bulk
func (h *TransactionsHandler) BulkIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req struct {
		Transactions []transactionRequest `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Transactions) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "transactions must not be empty")
		return
	}
	if len(req.Transactions) > MaxBulkSize {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d transactions per request", MaxBulkSize))
		return
	}

	pending := make([]domain.PendingTransaction, len(req.Transactions))
	for i, t := range req.Transactions {
		p, err := t.toPending()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("transaction %d: %v", i, err))
			return
		}
		pending[i] = p
	}

	job := &jobs.IngestJob{
		Type:         jobs.JobTypeIngestTransactions,
		Transactions: pending,
	}
	if err := h.publisher.Publish(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue ingest job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingest job")
		return
	}

	log.Info().Str("job_id", job.JobID).Int("transactions", len(pending)).Msg("Ingest job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.JobID,
		"status": job.Status,
		"total":  len(pending),
	})
}

// BulkDelete handles POST /api/transactions/bulk-delete
func (h *TransactionsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ids := make([]string, 0, len(req.IDs))
	seen := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	if len(ids) > MaxBulkSize {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d ids per request", MaxBulkSize))
		return
	}

	job := &jobs.IngestJob{
		Type:           jobs.JobTypeDeleteTransactions,
		TransactionIDs: ids,
	}
	if err := h.publisher.Publish(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue delete job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue delete job")
		return
	}

	log.Info().Str("job_id", job.JobID).Int("ids", len(ids)).Msg("Delete job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.JobID,
		"status": job.Status,
		"total":  len(ids),
	})
}

// ReferenceNumbers handles GET /api/reference-numbers?bank_account_id=&year=
// The year defaults to the current one.
func (h *TransactionsHandler) ReferenceNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	accountID := strings.TrimSpace(query.Get("bank_account_id"))
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "bank_account_id is required")
		return
	}

	year := h.now().Year()
	if yearStr := query.Get("year"); yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil || y < 1 || y > 9999 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = y
	}

	numbers, err := h.refs.ListReferenceNumbers(ctx, accountID, year)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("bank_account_id", accountID).Int("year", year).Msg("Failed to list reference numbers")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list reference numbers")
		return
	}
	if numbers == nil {
		numbers = []string{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bank_account_id":   accountID,
		"year":              year,
		"reference_numbers": numbers,
		"count":             len(numbers),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Type:   jobs.JobType(query.Get("type")),
		Status: jobs.JobStatus(query.Get("status")),
		Limit:  atoiOr(query.Get("limit"), 0),
		Offset: atoiOr(query.Get("offset"), 0),
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// RunsHandler exposes the ingestion run audit log.
type RunsHandler struct {
	recorder runs.Recorder
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(recorder runs.Recorder) *RunsHandler {
	return &RunsHandler{recorder: recorder}
}

// ListRuns handles GET /api/runs?limit=
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.recorder.ListRuns(ctx, atoiOr(r.URL.Query().Get("limit"), 50))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"count": len(list),
	})
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}
