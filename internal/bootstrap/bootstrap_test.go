package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/gpu-opinion-radar/internal/bootstrap"
	"github.com/DeafMist/gpu-opinion-radar/internal/classifier"
	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/DeafMist/gpu-opinion-radar/internal/morph"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func pipelineConfig(t *testing.T) *config.Pipeline {
	t.Helper()
	return &config.Pipeline{
		ForumBaseURL:     "https://forum.test",
		ForumBoard:       "28",
		PostLimit:        5,
		ExtractWorkers:   1,
		TokenizerPath:    filepath.Join(t.TempDir(), "missing.json"),
		ModelName:        "sentiment",
		SequenceLength:   100,
		PredictBatchSize: 16,
	}
}

func modelServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models/sentiment":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model_version_status": []map[string]string{{"version": "1", "state": "AVAILABLE"}},
			})
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineCollectOnlySkipsModel(t *testing.T) {
	stack, err := bootstrap.Pipeline(context.Background(), pipelineConfig(t), bootstrap.Options{
		CollectOnly: true,
		Registerer:  prometheus.NewRegistry(),
	}, discard)
	require.NoError(t, err)
	require.NotNil(t, stack.Orchestrator)
	require.Nil(t, stack.Model)

	_, err = stack.Orchestrator.RunQuery(context.Background(), "q")
	require.Error(t, err)
}

func TestPipelineFailsFastWithoutTokenizer(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.ModelEndpoint = modelServer(t).URL

	_, err := bootstrap.Pipeline(context.Background(), cfg, bootstrap.Options{Registerer: prometheus.NewRegistry()}, discard)
	require.ErrorIs(t, err, classifier.ErrModelUnavailable)
}

func TestPipelineLoadsModel(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.ModelEndpoint = modelServer(t).URL
	cfg.TokenizerPath = filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(cfg.TokenizerPath, []byte(`{"config": {"word_index": "{\"좋다\": 1}"}}`), 0o600))

	stack, err := bootstrap.Pipeline(context.Background(), cfg, bootstrap.Options{Registerer: prometheus.NewRegistry()}, discard)
	require.NoError(t, err)
	require.NotNil(t, stack.Model)
	require.NoError(t, stack.Model.Ready(context.Background()))
}

func TestAnalyzerSelection(t *testing.T) {
	cfg := pipelineConfig(t)

	a, err := bootstrap.Analyzer(context.Background(), cfg, discard)
	require.NoError(t, err)
	require.IsType(t, &morph.Rules{}, a)

	cfg.MorphEndpoint = modelServer(t).URL
	a, err = bootstrap.Analyzer(context.Background(), cfg, discard)
	require.NoError(t, err)
	require.IsType(t, &morph.Remote{}, a)

	cfg.MorphEndpoint = "http://127.0.0.1:1"
	_, err = bootstrap.Analyzer(context.Background(), cfg, discard)
	require.ErrorIs(t, err, morph.ErrUnavailable)
}

func TestAnalyzerWarnsWhenFallingBackToRules(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := bootstrap.Analyzer(context.Background(), pipelineConfig(t), log)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "MORPH_ENDPOINT")
	require.Contains(t, buf.String(), "exact parity")
}
