// Package bootstrap assembles the long-lived dependencies shared by the
// binaries from their configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeafMist/gpu-opinion-radar/internal/classifier"
	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/DeafMist/gpu-opinion-radar/internal/discovery"
	"github.com/DeafMist/gpu-opinion-radar/internal/elasticsearch"
	"github.com/DeafMist/gpu-opinion-radar/internal/extract"
	"github.com/DeafMist/gpu-opinion-radar/internal/forum"
	"github.com/DeafMist/gpu-opinion-radar/internal/morph"
	"github.com/DeafMist/gpu-opinion-radar/internal/pipeline"
	"github.com/DeafMist/gpu-opinion-radar/internal/processing"
	"github.com/DeafMist/gpu-opinion-radar/internal/render"
)

// Options selects what Pipeline builds.
type Options struct {
	// CollectOnly skips the model and analyzer; RunQuery is then unusable.
	CollectOnly bool
	Registerer  prometheus.Registerer
	Browser     render.Browser
}

// Stack is a ready Orchestrator plus the model handle for health checks.
type Stack struct {
	Orchestrator *pipeline.Orchestrator
	Model        *classifier.Model
}

// Pipeline loads the model (unless CollectOnly) and wires every stage. A
// missing model artifact fails here, before any query runs.
func Pipeline(ctx context.Context, cfg *config.Pipeline, opts Options, log *slog.Logger) (*Stack, error) {
	browser := opts.Browser
	if browser == nil {
		browser = render.NewCollyBrowser(render.Options{
			UserAgent:      cfg.UserAgent,
			RequestTimeout: cfg.RequestTimeout,
			PollInterval:   cfg.PollInterval,
			FetchInterval:  cfg.FetchInterval,
		}, log)
	}

	site := forum.Site{BaseURL: cfg.ForumBaseURL, Board: cfg.ForumBoard}
	deps := pipeline.Deps{
		Browser:    browser,
		Discoverer: discovery.New(site, cfg.WaitTimeout, log),
		Extractor:  extract.New(cfg.WaitTimeout, log),
		Metrics:    pipeline.NewMetrics(opts.Registerer),
	}

	stack := &Stack{}
	if !opts.CollectOnly {
		model, err := classifier.Load(ctx, classifier.Config{
			TokenizerPath:  cfg.TokenizerPath,
			Endpoint:       cfg.ModelEndpoint,
			ModelName:      cfg.ModelName,
			Timeout:        cfg.ModelTimeout,
			SequenceLength: cfg.SequenceLength,
		})
		if err != nil {
			return nil, err
		}
		log.Info("sentiment model loaded",
			slog.String("model", cfg.ModelName),
			slog.String("tokenizer", cfg.TokenizerPath),
			slog.String("preprocessing", processing.ContractVersion),
		)

		analyzer, err := Analyzer(ctx, cfg, log)
		if err != nil {
			return nil, err
		}

		stack.Model = model
		deps.Normalizer = processing.NewNormalizer(analyzer)
		deps.Classifier = classifier.NewAdapter(model, cfg.PredictBatchSize)
	}

	stack.Orchestrator = pipeline.New(deps, pipeline.Options{
		PostLimit: cfg.PostLimit,
		Workers:   cfg.ExtractWorkers,
	}, log)
	return stack, nil
}

// Analyzer returns the sidecar analyzer when MORPH_ENDPOINT is set and the
// built-in rules otherwise. The rules only approximate the analyzer the
// model was trained with, so choosing them is logged as a warning.
func Analyzer(ctx context.Context, cfg *config.Pipeline, log *slog.Logger) (morph.Analyzer, error) {
	if cfg.MorphEndpoint == "" {
		log.Warn("MORPH_ENDPOINT not set, using built-in morph rules; set it to the analyzer sidecar for exact parity with the training tokenization",
			slog.String("preprocessing", processing.ContractVersion),
		)
		return morph.NewRules(), nil
	}

	remote := morph.NewRemote(cfg.MorphEndpoint, cfg.ModelTimeout)
	if err := remote.Health(ctx); err != nil {
		return nil, fmt.Errorf("morph analyzer at %s: %w", cfg.MorphEndpoint, err)
	}
	log.Info("using morph sidecar", slog.String("endpoint", cfg.MorphEndpoint))
	return remote, nil
}

// Elasticsearch connects to the cluster, retrying with exponential backoff
// until it answers a ping or maxRetries is reached.
func Elasticsearch(ctx context.Context, common config.Common, log *slog.Logger) (*elasticsearch.Client, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		client, err := elasticsearch.New(common.ElasticsearchAddr, common.ElasticsearchIndex, log)
		if err != nil {
			lastErr = err
			log.Warn("failed to create elasticsearch client, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pingErr := client.Ping(pingCtx)
			cancel()
			if pingErr == nil {
				log.Info("connected to elasticsearch", slog.String("addr", common.ElasticsearchAddr))
				return client, nil
			}
			lastErr = pingErr
			log.Warn("elasticsearch ping failed, retrying",
				slog.Any("err", pingErr),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_in", retryDelay),
			)
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}

	return nil, errors.Join(errors.New("elasticsearch unreachable after retries"), lastErr)
}
