package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/api/middleware"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPublisher records published jobs and saves them to Store.
type MockPublisher struct {
	Store *inmemory.Store
	Jobs  []*jobs.IngestJob
	Err   error
}

func (m *MockPublisher) Publish(ctx context.Context, job *jobs.IngestJob) error {
	if m.Err != nil {
		return m.Err
	}
	job.JobID = "job-" + string(rune('0'+len(m.Jobs)))
	job.Status = jobs.JobStatusPending
	job.CreatedAt = time.Now()
	m.Jobs = append(m.Jobs, job)
	return m.Store.SaveJob(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

type MockRefs struct {
	ListFunc func(ctx context.Context, bankAccountID string, year int) ([]string, error)
}

func (m *MockRefs) ListReferenceNumbers(ctx context.Context, bankAccountID string, year int) ([]string, error) {
	return m.ListFunc(ctx, bankAccountID, year)
}

type fixedRecorder struct {
	runs.NopRecorder
	list []runs.Run
}

func (f fixedRecorder) ListRuns(ctx context.Context, limit int) ([]runs.Run, error) {
	return f.list, nil
}

type testServer struct {
	handler   http.Handler
	publisher *MockPublisher
	store     *inmemory.Store
	refs      *MockRefs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := inmemory.NewStore()
	ts := &testServer{
		publisher: &MockPublisher{Store: store},
		store:     store,
		refs: &MockRefs{ListFunc: func(ctx context.Context, id string, year int) ([]string, error) {
			return []string{"TXN-2025-0012-0001"}, nil
		}},
	}
	ts.handler = NewRouter(Deps{
		Publisher: ts.publisher,
		JobStore:  store,
		Refs:      ts.refs,
		Recorder: fixedRecorder{list: []runs.Run{{RunID: "r1", Operation: runs.OperationIngest, Status: runs.StatusSuccess}}},
		Log:       zerolog.Nop(),
	})
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBulkIngest_EnqueuesJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/transactions/bulk", map[string]any{
		"transactions": []map[string]any{
			{"bank_account_id": "acct-1", "date": "2025-01-15", "expense": "12.50", "description": "lunch"},
			{"bank_account_id": "acct-1", "date": "2025-01-16T00:00:00Z", "income": 100},
		},
	})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "job-0", body["job_id"])
	assert.EqualValues(t, 2, body["total"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	require.Len(t, ts.publisher.Jobs, 1)
	job := ts.publisher.Jobs[0]
	assert.Equal(t, jobs.JobTypeIngestTransactions, job.Type)
	require.Len(t, job.Transactions, 2)
	assert.Equal(t, "12.5", job.Transactions[0].Expense.String())
	assert.Equal(t, 2025, job.Transactions[1].Year())
}

func TestBulkIngest_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty", map[string]any{"transactions": []any{}}, http.StatusBadRequest},
		{"bad date", map[string]any{"transactions": []map[string]any{{"bank_account_id": "a", "date": "15/01/2025"}}}, http.StatusBadRequest},
		{"missing account", map[string]any{"transactions": []map[string]any{{"date": "2025-01-15"}}}, http.StatusBadRequest},
		{"negative", map[string]any{"transactions": []map[string]any{{"bank_account_id": "a", "date": "2025-01-15", "expense": -1}}}, http.StatusBadRequest},
		{"not json", "nope", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodPost, "/api/transactions/bulk", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Empty(t, ts.publisher.Jobs)
		})
	}
}

func TestBulkIngest_PublishFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.Err = errors.New("queue is closed")

	rec := ts.do(http.MethodPost, "/api/transactions/bulk", map[string]any{
		"transactions": []map[string]any{{"bank_account_id": "a", "date": "2025-01-15", "income": 1}},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBulkDelete_DedupesIDs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/transactions/bulk-delete", map[string]any{"ids": []string{"a", "b", "a", " ", "c"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, ts.publisher.Jobs, 1)
	assert.Equal(t, jobs.JobTypeDeleteTransactions, ts.publisher.Jobs[0].Type)
	assert.Equal(t, []string{"a", "b", "c"}, ts.publisher.Jobs[0].TransactionIDs)

	rec = ts.do(http.MethodPost, "/api/transactions/bulk-delete", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferenceNumbers(t *testing.T) {
	ts := newTestServer(t)
	var gotYear int
	ts.refs.ListFunc = func(ctx context.Context, id string, year int) ([]string, error) {
		gotYear = year
		return []string{"TXN-2024-0012-0001", "TXN-2024-0012-0002"}, nil
	}

	rec := ts.do(http.MethodGet, "/api/reference-numbers?bank_account_id=acct-1&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, 2024, gotYear)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/reference-numbers", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/reference-numbers?bank_account_id=a&year=abc", nil).Code)

	ts.refs.ListFunc = func(ctx context.Context, id string, year int) ([]string, error) {
		return nil, errors.New("store down")
	}
	assert.Equal(t, http.StatusInternalServerError, ts.do(http.MethodGet, "/api/reference-numbers?bank_account_id=a", nil).Code)
}

func TestJobsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.SaveJob(context.Background(), &jobs.IngestJob{
		JobID:    "known",
		Type:     jobs.JobTypeIngestTransactions,
		Status:   jobs.JobStatusRunning,
		Progress: domain.NewProgress(domain.PhaseIngest, 250, 1000),
	}))

	rec := ts.do(http.MethodGet, "/api/jobs/known", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	progress := body["progress"].(map[string]any)
	assert.EqualValues(t, 25, progress["percentage"])
	assert.NotContains(t, body, "Transactions")

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/jobs/unknown", nil).Code)

	rec = ts.do(http.MethodGet, "/api/jobs?status=running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}

func TestRunsAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/metrics", nil).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodGet, "/api/transactions/bulk", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodDelete, "/api/jobs", nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodOptions, "/api/jobs", nil).Code)
}
