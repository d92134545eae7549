package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/isony10/EntryChecker/internal/audit"
	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/holiday"
	"github.com/isony10/EntryChecker/internal/jobs"
	"github.com/isony10/EntryChecker/internal/jobs/inmemory"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const journalCSV = `전표일자,전표번호,계정과목,적요,차변금액,대변금액,거래처코드
2024-01-06,V3,접대비,주말 회식,1000000,0,C1
2024-01-08,V1,현금,매출 입금,500,0,C2
2024-01-08,V1,매출,매출 입금,0,500,C2
`

// MockStore is a function-field gcs.Store.
type MockStore struct {
	FetchFunc  func(ctx context.Context, uri string) (*gcs.Object, error)
	UploadFunc func(ctx context.Context, bucket, object, filePath string) error
}

func (m *MockStore) Fetch(ctx context.Context, uri string) (*gcs.Object, error) {
	return m.FetchFunc(ctx, uri)
}

func (m *MockStore) Upload(ctx context.Context, bucket, object, filePath string) error {
	return m.UploadFunc(ctx, bucket, object, filePath)
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func newTestRouter(gen coach.Generator, store gcs.Store) *http.ServeMux {
	log := zerolog.Nop()
	jobStore := inmemory.NewStore()
	return NewRouter(Deps{
		Analyzer:  audit.NewAnalyzer(holiday.None{}, log),
		Coach:     coach.New(gen, log),
		Reviewer:  coach.NewReviewer(gen, log, coach.ReviewerConfig{BatchSize: 10, Concurrency: 1, RatePerSec: 1000}),
		Storage:   store,
		JobStore:  jobStore,
		Publisher: inmemory.NewQueue(4, 1, jobStore, log),
		Log:       log,
	})
}

// multipartRequest builds a POST with the given form fields and, when
// fileName is set, a file part holding content.
func multipartRequest(t *testing.T, path string, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAnalyze_LogicTree(t *testing.T) {
	router := newTestRouter(nil, nil)
	tree := `{"type":"group","op":"AND","items":[
		{"type":"cond","rule":"weekend_txn"},
		{"type":"cond","rule":"amount_over","op":">=","value":"1,000,000","target":"debit"}]}`

	rec := serve(router, multipartRequest(t, "/api/analyze", map[string]string{"logic_tree": tree}, "journal.csv", journalCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []int{0}, res.FlaggedIndices)
	assert.Equal(t, []int{1, 2}, res.RuleMap[0])
	assert.Empty(t, res.RuleMap[1])
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "2024-01-06", res.Rows[0]["전표일자"])
	assert.Equal(t, 1000000.0, res.Rows[0]["차변금액"])
}

func TestAnalyze_LegacyRules(t *testing.T) {
	router := newTestRouter(nil, nil)
	fields := map[string]string{
		"active_rules": `["keyword_search","unbalanced_set"]`,
		"values":       `{"keyword_search":"회식"}`,
		"logic_op":     "OR",
	}

	rec := serve(router, multipartRequest(t, "/api/analyze", fields, "journal.csv", journalCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []int{0}, res.FlaggedIndices)
	assert.Equal(t, []int{3, 7}, res.RuleMap[0])
}

func TestAnalyze_FromGCS(t *testing.T) {
	store := &MockStore{FetchFunc: func(ctx context.Context, uri string) (*gcs.Object, error) {
		if uri != "gs://ledgers/2024/journal.csv" {
			return nil, gcs.ErrInvalidURI
		}
		return &gcs.Object{Name: "journal.csv", Data: []byte(journalCSV)}, nil
	}}
	router := newTestRouter(nil, store)
	fields := map[string]string{
		"gcs_uri":    "gs://ledgers/2024/journal.csv",
		"logic_tree": `{"type":"cond","rule":"weekend_txn"}`,
	}

	rec := serve(router, multipartRequest(t, "/api/analyze", fields, "", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{0.0}, decode(t, rec)["flagged_indices"])
}

func TestAnalyze_Errors(t *testing.T) {
	fetchFails := &MockStore{FetchFunc: func(ctx context.Context, uri string) (*gcs.Object, error) {
		return nil, errors.New("permission denied")
	}}
	tree := map[string]string{"logic_tree": `{"rule":"weekend_txn"}`}

	tests := []struct {
		name     string
		store    gcs.Store
		fields   map[string]string
		file     string
		content  string
		wantCode int
	}{
		{"no rules", nil, nil, "journal.csv", journalCSV, http.StatusBadRequest},
		{"bad tree", nil, map[string]string{"logic_tree": `{"type":`}, "journal.csv", journalCSV, http.StatusBadRequest},
		{"bad active rules", nil, map[string]string{"active_rules": `weekend_txn`}, "journal.csv", journalCSV, http.StatusBadRequest},
		{"no input", nil, tree, "", "", http.StatusBadRequest},
		{"unsupported type", nil, tree, "journal.pdf", "%PDF", http.StatusUnsupportedMediaType},
		{"empty csv", nil, tree, "journal.csv", "", http.StatusBadRequest},
		{"gcs not configured", nil, map[string]string{"logic_tree": `{"rule":"weekend_txn"}`, "gcs_uri": "gs://b/o.csv"}, "", "", http.StatusServiceUnavailable},
		{"gcs failure", fetchFails, map[string]string{"logic_tree": `{"rule":"weekend_txn"}`, "gcs_uri": "gs://b/o.csv"}, "", "", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(nil, tt.store)
			rec := serve(router, multipartRequest(t, "/api/analyze", tt.fields, tt.file, tt.content))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestAnalyze_FrontEndPath(t *testing.T) {
	router := newTestRouter(nil, nil)
	fields := map[string]string{"logic_tree": `{"type":"cond","rule":"weekend_txn"}`}

	rec := serve(router, multipartRequest(t, "/analyze", fields, "journal.csv", journalCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{0.0}, decode(t, rec)["flagged_indices"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyze_GCSUnsupportedTypeSkipsFetch(t *testing.T) {
	fetched := false
	store := &MockStore{FetchFunc: func(ctx context.Context, uri string) (*gcs.Object, error) {
		fetched = true
		return &gcs.Object{Name: "report.pdf", Data: []byte("%PDF")}, nil
	}}
	fields := map[string]string{
		"logic_tree": `{"rule":"weekend_txn"}`,
		"gcs_uri":    "gs://ledgers/report.pdf",
	}

	rec := serve(newTestRouter(nil, store), multipartRequest(t, "/api/analyze", fields, "", ""))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, rec.Body.String())
	assert.False(t, fetched)
}

func TestAnalyze_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(newTestRouter(nil, nil), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(newTestRouter(nil, nil), httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestListRules(t *testing.T) {
	rec := serve(newTestRouter(nil, nil), httptest.NewRequest(http.MethodGet, "/api/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 7.0, body["count"])
	first := body["rules"].([]any)[0].(map[string]any)
	assert.Equal(t, "weekend_txn", first["id"])
	assert.Equal(t, 1.0, first["number"])
}

func TestHealth(t *testing.T) {
	rec := serve(newTestRouter(nil, nil), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestSuggestEntry(t *testing.T) {
	var prompt string
	gen := generatorFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"errorType":"주말 거래","cause":"c","solution":"s"}`, nil
	})

	body := `{"entry":{"계정과목":"접대비","차변금액":1000000},"rule":"weekend_txn"}`
	req := httptest.NewRequest(http.MethodPost, "/api/coach/entry", strings.NewReader(body))
	rec := serve(newTestRouter(gen, nil), req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "주말 거래", decode(t, rec)["errorType"])
	assert.Contains(t, prompt, "주말·공휴일 거래")
}

func TestSuggestEntry_Errors(t *testing.T) {
	tests := []struct {
		name     string
		gen      coach.Generator
		body     string
		wantCode int
	}{
		{"bad body", nil, `{`, http.StatusBadRequest},
		{"missing entry", nil, `{"rule":"weekend_txn"}`, http.StatusBadRequest},
		{"not configured", coach.Unconfigured{}, `{"entry":{"a":1}}`, http.StatusServiceUnavailable},
		{"malformed reply", generatorFunc(func(context.Context, string) (string, error) {
			return "<html>busy</html>", nil
		}), `{"entry":{"a":1}}`, http.StatusBadGateway},
		{"transport error", generatorFunc(func(context.Context, string) (string, error) {
			return "", errors.New("timeout")
		}), `{"entry":{"a":1}}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/coach/entry", strings.NewReader(tt.body))
			rec := serve(newTestRouter(tt.gen, nil), req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

const unbalancedCSV = `전표일자,전표번호,계정과목,차변금액,대변금액
2024-01-08,V1,현금,100,0
2024-01-09,V2,현금,50,0
2024-01-09,V2,매출,0,50
`

func TestReviewVouchers(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, p string) (string, error) {
		return `[{"id":1,"isError":true,"errorType":"대차차액","cause":"c","solution":"s"}]`, nil
	})

	rec := serve(newTestRouter(gen, nil), multipartRequest(t, "/api/coach/vouchers", nil, "journal.csv", unbalancedCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, 1.0, body["count"])
	finding := body["findings"].([]any)[0].(map[string]any)
	assert.Equal(t, "V1", finding["voucherNo"])
	assert.Equal(t, "2024-01-08", finding["date"])
}

func TestReviewVouchers_CustomColumns(t *testing.T) {
	log := zerolog.Nop()
	gen := generatorFunc(func(ctx context.Context, p string) (string, error) {
		return `[{"id":1,"isError":true,"errorType":"대차차액"}]`, nil
	})
	cols := journal.DefaultColumns()
	cols[journal.FieldPostingDate] = append([]string{"Posting Dt"}, cols[journal.FieldPostingDate]...)
	cols[journal.FieldVoucherNo] = append([]string{"Doc No"}, cols[journal.FieldVoucherNo]...)
	cols[journal.FieldAccount] = append([]string{"Acct"}, cols[journal.FieldAccount]...)
	cols[journal.FieldDebit] = append([]string{"Dr"}, cols[journal.FieldDebit]...)
	cols[journal.FieldCredit] = append([]string{"Cr"}, cols[journal.FieldCredit]...)

	router := NewRouter(Deps{
		Reviewer: coach.NewReviewer(gen, log, coach.ReviewerConfig{BatchSize: 10, Concurrency: 1, RatePerSec: 1000}),
		Columns:  cols,
		Log:      log,
	})
	csv := "Posting Dt,Doc No,Acct,Dr,Cr\n2024-01-08,D1,현금,100,0\n2024-01-09,D2,현금,50,0\n2024-01-09,D2,매출,0,50\n"

	rec := serve(router, multipartRequest(t, "/api/coach/vouchers", nil, "erp.csv", csv))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, 1.0, body["count"])
	finding := body["findings"].([]any)[0].(map[string]any)
	assert.Equal(t, "D1", finding["voucherNo"])
	assert.Equal(t, "2024-01-08", finding["date"])
}

func TestReviewVouchers_NotConfigured(t *testing.T) {
	rec := serve(newTestRouter(coach.Unconfigured{}, nil), multipartRequest(t, "/api/coach/vouchers", nil, "journal.csv", unbalancedCSV))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReviewJobs(t *testing.T) {
	log := zerolog.Nop()
	gen := generatorFunc(func(ctx context.Context, p string) (string, error) {
		return `[{"id":1,"isError":true,"errorType":"대차차액"}]`, nil
	})
	reviewer := coach.NewReviewer(gen, log, coach.ReviewerConfig{BatchSize: 10, Concurrency: 1, RatePerSec: 1000})
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(4, 1, store, log)
	defer queue.Close()
	require.NoError(t, queue.Start(context.Background(), func(ctx context.Context, job *jobs.ReviewJob) ([]coach.Finding, error) {
		return reviewer.ReviewUnbalanced(ctx, job.Ledger)
	}))

	router := NewRouter(Deps{Publisher: queue, JobStore: store, Log: log})

	rec := serve(router, multipartRequest(t, "/api/coach/vouchers/jobs", nil, "journal.csv", unbalancedCSV))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decode(t, rec)["job_id"].(string)
	require.NotEmpty(t, jobID)

	var job map[string]any
	require.Eventually(t, func() bool {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		job = decode(t, rec)
		return job["status"] == string(jobs.StatusCompleted)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "journal.csv", job["source"])
	assert.Equal(t, 3.0, job["rows"])
	assert.Len(t, job["findings"], 1)

	list := decode(t, serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)))
	assert.Equal(t, 1.0, list["count"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewJobs_Disabled(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
