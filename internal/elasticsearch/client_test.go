package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/gpu-opinion-radar/internal/elasticsearch"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

// fakeES answers with canned bodies keyed by "METHOD path".
type fakeES struct {
	mu        sync.Mutex
	requests  []recorded
	responses map[string]func(w http.ResponseWriter)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if h, ok := f.responses[r.Method+" "+r.URL.Path]; ok {
		h(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeES) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newClient(t *testing.T, fake *fakeES) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := elasticsearch.New(srv.URL, "reports", nil)
	require.NoError(t, err)
	return c
}

func TestIndexReportUsesReportID(t *testing.T) {
	fake := &fakeES{}
	c := newClient(t, fake)

	report := &models.Report{ID: "abc", Query: "RTX 5080", Total: 1}
	require.NoError(t, c.IndexReport(context.Background(), report))

	req := fake.last(t)
	require.Equal(t, http.MethodPut, req.method)
	require.Equal(t, "/reports/_doc/abc", req.path)
	require.Contains(t, req.body, `"query":"RTX 5080"`)
}

func TestGetReportNotFound(t *testing.T) {
	fake := &fakeES{responses: map[string]func(http.ResponseWriter){
		"GET /reports/_doc/missing": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"found": false}`))
		},
	}}
	c := newClient(t, fake)

	_, err := c.GetReport(context.Background(), "missing")
	require.ErrorIs(t, err, elasticsearch.ErrNotFound)
}

func TestGetReportDecodesSource(t *testing.T) {
	fake := &fakeES{responses: map[string]func(http.ResponseWriter){
		"GET /reports/_doc/r1": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"found": true, "_source": {"id": "r1", "query": "4090", "total": 2, "counts": {"positive": 2, "negative": 0, "neutral": 0}}}`))
		},
	}}
	c := newClient(t, fake)

	report, err := c.GetReport(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "4090", report.Query)
	require.Equal(t, 2, report.Counts[models.LabelPositive])
}

func TestSearchReportsBuildsFilters(t *testing.T) {
	fake := &fakeES{responses: map[string]func(http.ResponseWriter){
		"POST /reports/_search": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"hits": {"total": {"value": 7}, "hits": [{"_source": {"id": "r1", "query": "5080"}}]}}`))
		},
	}}
	c := newClient(t, fake)

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	res, err := c.SearchReports(context.Background(), elasticsearch.SearchParams{
		Query:    "5080",
		Dominant: models.LabelNegative,
		Start:    &start,
		Size:     500,
		Sort:     "total:asc",
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), res.Total)
	require.Len(t, res.Items, 1)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.last(t).body), &body))
	require.EqualValues(t, 200, body["size"])
	require.Contains(t, fake.last(t).body, `"dominant":"negative"`)
	require.Contains(t, fake.last(t).body, `"gte":"2026-10-01T00:00:00Z"`)
	require.Contains(t, fake.last(t).body, `"excludes":["items"]`)
	require.Contains(t, fake.last(t).body, `"total":{"order":"asc"}`)
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	var calls int
	fake := &fakeES{responses: map[string]func(http.ResponseWriter){
		"POST /reports/_delete_by_query": func(w http.ResponseWriter) {
			calls++
			deleted := 10
			if calls == 3 {
				deleted = 4
			}
			_, _ = w.Write([]byte(`{"deleted": ` + strconv.Itoa(deleted) + `}`))
		},
	}}
	c := newClient(t, fake)

	total, err := c.DeleteOlderThan(context.Background(), time.Hour, 10)
	require.NoError(t, err)
	require.Equal(t, int64(24), total)
	require.Equal(t, 3, calls)
	require.Contains(t, fake.last(t).query, "max_docs=10")
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	fake := &fakeES{responses: map[string]func(http.ResponseWriter){
		"HEAD /reports": func(w http.ResponseWriter) { w.WriteHeader(http.StatusNotFound) },
	}}
	c := newClient(t, fake)

	require.NoError(t, c.EnsureIndex(context.Background()))
	req := fake.last(t)
	require.Equal(t, http.MethodPut, req.method)
	require.Equal(t, "/reports", req.path)
	require.Contains(t, req.body, `"dominant":{"type":"keyword"}`)
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	fake := &fakeES{}
	c := newClient(t, fake)

	require.NoError(t, c.EnsureIndex(context.Background()))
	require.Equal(t, http.MethodHead, fake.last(t).method)
}
