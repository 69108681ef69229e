package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/gpu-opinion-radar/internal/bootstrap"
	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/DeafMist/gpu-opinion-radar/internal/dedupe"
	"github.com/DeafMist/gpu-opinion-radar/internal/logger"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/pipeline"
)

type analysisRequest struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
}

type reportSummary struct {
	RequestID   string                   `json:"request_id"`
	ReportID    string                   `json:"report_id"`
	Query       string                   `json:"query"`
	Timestamp   time.Time                `json:"timestamp"`
	PostCount   int                      `json:"post_count"`
	Total       int                      `json:"total"`
	Counts      map[models.Label]int     `json:"counts"`
	Percentages map[models.Label]float64 `json:"percentages"`
	Dominant    models.Label             `json:"dominant,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

type queryRunner interface {
	RunQuery(ctx context.Context, query string) (*models.Report, error)
}

type reportIndexer interface {
	IndexReport(ctx context.Context, report *models.Report) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
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

	if cfg.MetricsAddr != "" {
		go serveMetrics(log, cfg.MetricsAddr)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	reportWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaReportTopic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	defer reportWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.String("report_topic", cfg.KafkaReportTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, stack.Orchestrator, esClient, reportWriter, cache, msg); err != nil {
			if ctx.Err() != nil {
				log.Info("context canceled mid-message, leaving it uncommitted")
				return
			}
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Only commit if DLQ write succeeded; otherwise skip commit and reprocess on restart
			if sendToDLQ(ctx, log, dlqWriter, msg, err, time.Second) {
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error("commit failed message to dlq", slog.Any("err", err))
				}
			}
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func serveMetrics(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info("metrics server starting", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", slog.Any("err", err))
	}
}

// processMessage runs one analysis request. A nil error means the message can
// be committed: the report was stored, or the request was a duplicate.
func processMessage(
	ctx context.Context,
	log *slog.Logger,
	runner queryRunner,
	idx reportIndexer,
	publisher messageWriter,
	cache *dedupe.Cache,
	msg kafka.Message,
) error {
	var payload analysisRequest
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		return errors.New("empty query")
	}

	requestID := requestIDOf(payload, msg)
	if !cache.Claim(requestID) {
		log.Debug("duplicate request", slog.String("request_id", requestID))
		return nil
	}

	report, err := runner.RunQuery(ctx, query)
	if err != nil && !errors.Is(err, pipeline.ErrEmptyResultSet) {
		cache.Release(requestID)
		return fmt.Errorf("run query: %w", err)
	}
	if err != nil {
		log.Warn("query produced nothing to analyze",
			slog.String("request_id", requestID),
			slog.String("query", query),
			slog.Any("warnings", report.Warnings),
		)
	}
	report.RequestID = requestID

	if err := idx.IndexReport(ctx, report); err != nil {
		cache.Release(requestID)
		return fmt.Errorf("index report: %w", err)
	}

	if err := publishSummary(ctx, publisher, report); err != nil {
		log.Warn("publish report summary", slog.String("report_id", report.ID), slog.Any("err", err))
	}

	log.Info("indexed report",
		slog.String("request_id", requestID),
		slog.String("report_id", report.ID),
		slog.String("query", report.Query),
		slog.Int("total", report.Total),
	)
	return nil
}

func requestIDOf(payload analysisRequest, msg kafka.Message) string {
	if id := strings.TrimSpace(payload.RequestID); id != "" {
		return id
	}
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	return uuid.NewString()
}

func publishSummary(ctx context.Context, w messageWriter, report *models.Report) error {
	data, err := json.Marshal(reportSummary{
		RequestID:   report.RequestID,
		ReportID:    report.ID,
		Query:       report.Query,
		Timestamp:   report.Timestamp,
		PostCount:   report.PostCount,
		Total:       report.Total,
		Counts:      report.Counts,
		Percentages: report.Percentages,
		Dominant:    report.Dominant,
		Warnings:    report.Warnings,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(report.RequestID), Value: data})
}

// sendToDLQ forwards msg with error context, retrying with exponential
// backoff starting at base. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, base time.Duration) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := base << uint(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}
