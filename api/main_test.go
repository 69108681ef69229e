package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/DeafMist/gpu-opinion-radar/internal/discovery"
	"github.com/DeafMist/gpu-opinion-radar/internal/elasticsearch"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/pipeline"
)

type stubStore struct {
	healthErr error
	indexed   []*models.Report
	reports   map[string]*models.Report
	params    elasticsearch.SearchParams
}

func (s *stubStore) Health(context.Context) error { return s.healthErr }

func (s *stubStore) IndexReport(_ context.Context, r *models.Report) error {
	s.indexed = append(s.indexed, r)
	return nil
}

func (s *stubStore) GetReport(_ context.Context, id string) (*models.Report, error) {
	if r, ok := s.reports[id]; ok {
		return r, nil
	}
	return nil, elasticsearch.ErrNotFound
}

func (s *stubStore) SearchReports(_ context.Context, p elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = p
	return &elasticsearch.SearchResult{Total: 1, Items: []models.Report{{ID: "r1"}}}, nil
}

type stubRunner struct {
	report *models.Report
	err    error
}

func (s *stubRunner) RunQuery(_ context.Context, query string) (*models.Report, error) {
	if strings.TrimSpace(query) == "" {
		return nil, discovery.ErrInvalidQuery
	}
	return s.report, s.err
}

type stubModel struct{ err error }

func (s stubModel) Ready(context.Context) error { return s.err }

func newServer(store *stubStore, runner *stubRunner) *server {
	return &server{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:    &config.API{DefaultPage: 20, MaxPage: 50, QueryTimeout: time.Second},
		store:  store,
		runner: runner,
		model:  stubModel{},
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeStoresAndReturnsReport(t *testing.T) {
	store := &stubStore{}
	report := &models.Report{ID: "r1", Query: "RTX 5080", Total: 2}
	h := newServer(store, &stubRunner{report: report}).routes()

	rec := do(t, h, http.MethodPost, "/analyze", `{"query":"RTX 5080"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "r1", got.ID)
	require.Len(t, store.indexed, 1)
}

func TestAnalyzeEmptyResultIsNotAnError(t *testing.T) {
	store := &stubStore{}
	report := &models.Report{ID: "r2", Warnings: []string{"forum search did not respond in time"}}
	h := newServer(store, &stubRunner{report: report, err: pipeline.ErrEmptyResultSet}).routes()

	rec := do(t, h, http.MethodPost, "/analyze", `{"query":"RTX 5080"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "did not respond")
	require.Len(t, store.indexed, 1)
}

func TestAnalyzeRejectsBlankQuery(t *testing.T) {
	h := newServer(&stubStore{}, &stubRunner{}).routes()

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/analyze", `{"query":"  "}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/analyze", `not json`).Code)
}

func TestAnalyzePipelineFailure(t *testing.T) {
	store := &stubStore{}
	h := newServer(store, &stubRunner{err: fmt.Errorf("classify: %w", errors.New("model down"))}).routes()

	rec := do(t, h, http.MethodPost, "/analyze", `{"query":"4090"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Empty(t, store.indexed)
}

func TestSearchPassesFilters(t *testing.T) {
	store := &stubStore{}
	h := newServer(store, &stubRunner{}).routes()

	rec := do(t, h, http.MethodGet, "/reports?q=5080&dominant=negative&size=500&start=2026-10-01T00:00:00Z&items=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "5080", store.params.Query)
	require.Equal(t, models.LabelNegative, store.params.Dominant)
	require.Equal(t, 50, store.params.Size)
	require.NotNil(t, store.params.Start)
	require.True(t, store.params.WithItems)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/reports?dominant=angry", "").Code)
}

func TestGetReport(t *testing.T) {
	store := &stubStore{reports: map[string]*models.Report{"r1": {ID: "r1", Query: "5080"}}}
	h := newServer(store, &stubRunner{}).routes()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/reports/r1", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/reports/nope", "").Code)
}

func TestHealth(t *testing.T) {
	srv := newServer(&stubStore{}, &stubRunner{})
	require.Equal(t, http.StatusOK, do(t, srv.routes(), http.MethodGet, "/health", "").Code)

	srv.model = stubModel{err: errors.New("LOADING")}
	require.Equal(t, http.StatusServiceUnavailable, do(t, srv.routes(), http.MethodGet, "/health", "").Code)

	srv = newServer(&stubStore{healthErr: errors.New("red")}, &stubRunner{})
	require.Equal(t, http.StatusServiceUnavailable, do(t, srv.routes(), http.MethodGet, "/health", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newServer(&stubStore{}, &stubRunner{}).routes(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 20, clampInt("", 20, 50))
	require.Equal(t, 20, clampInt("abc", 20, 50))
	require.Equal(t, 20, clampInt("-3", 20, 50))
	require.Equal(t, 50, clampInt("99", 20, 50))
	require.Equal(t, 7, clampInt("7", 20, 50))
}
