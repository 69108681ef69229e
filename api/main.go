package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/gpu-opinion-radar/internal/bootstrap"
	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/DeafMist/gpu-opinion-radar/internal/discovery"
	"github.com/DeafMist/gpu-opinion-radar/internal/elasticsearch"
	"github.com/DeafMist/gpu-opinion-radar/internal/logger"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/pipeline"
)

const maxBodyBytes = 4 << 10

type reportStore interface {
	Health(ctx context.Context) error
	IndexReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	SearchReports(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type queryRunner interface {
	RunQuery(ctx context.Context, query string) (*models.Report, error)
}

type readiness interface {
	Ready(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := bootstrap.Elasticsearch(ctx, cfg.Common, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	stack, err := bootstrap.Pipeline(ctx, &cfg.Pipeline, bootstrap.Options{}, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, store: esClient, runner: stack.Orchestrator, model: stack.Model}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 15*time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log    *slog.Logger
	cfg    *config.API
	store  reportStore
	runner queryRunner
	model  readiness
}

type errorResponse struct {
	Error string `json:"error"`
}

type analyzeRequest struct {
	Query string `json:"query"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/reports", s.handleSearch)
	r.Get("/reports/{id}", s.handleGetReport)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if s.model != nil {
		if err := s.model.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "model: " + err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	report, err := s.runner.RunQuery(ctx, req.Query)
	switch {
	case errors.Is(err, discovery.ErrInvalidQuery):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query must not be empty"})
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "analysis timed out"})
		return
	case err != nil && !errors.Is(err, pipeline.ErrEmptyResultSet):
		s.log.Error("analyze", slog.String("query", req.Query), slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	if err := s.store.IndexReport(ctx, report); err != nil {
		s.log.Warn("store report", slog.String("report_id", report.ID), slog.Any("err", err))
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:     strings.TrimSpace(q.Get("q")),
		Dominant:  models.Label(strings.TrimSpace(q.Get("dominant"))),
		From:      clampInt(q.Get("from"), 0, 10_000),
		Size:      clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:      strings.TrimSpace(q.Get("sort")),
		Start:     parseTime(q.Get("start")),
		End:       parseTime(q.Get("end")),
		WithItems: q.Get("items") == "true",
	}

	if params.Dominant != "" && !validLabel(params.Dominant) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown label " + string(params.Dominant)})
		return
	}

	result, err := s.store.SearchReports(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report, err := s.store.GetReport(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, elasticsearch.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func validLabel(l models.Label) bool {
	for _, known := range models.Labels {
		if l == known {
			return true
		}
	}
	return false
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
