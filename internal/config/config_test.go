package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadPipelineDefaults(t *testing.T) {
	noDotenv(t)
	t.Setenv("FORUM_BASE_URL", "")
	t.Setenv("DISCOVERY_LIMIT", "")
	t.Setenv("SEQUENCE_LENGTH", "")

	cfg, err := config.LoadPipeline()
	require.NoError(t, err)

	require.Equal(t, "https://coolenjoy.net", cfg.ForumBaseURL)
	require.Equal(t, "28", cfg.ForumBoard)
	require.Equal(t, 5, cfg.PostLimit)
	require.Equal(t, 10*time.Second, cfg.WaitTimeout)
	require.Equal(t, time.Second, cfg.FetchInterval)
	require.Equal(t, 1, cfg.ExtractWorkers)
	require.Equal(t, 100, cfg.SequenceLength)
	require.Contains(t, cfg.UserAgent, "Mozilla/5.0")
	require.Empty(t, cfg.MorphEndpoint)
}

func TestLoadPipelineRejectsNonPositiveLimit(t *testing.T) {
	noDotenv(t)
	t.Setenv("DISCOVERY_LIMIT", "0")

	_, err := config.LoadPipeline()
	require.ErrorContains(t, err, "DISCOVERY_LIMIT")
}

func TestLoadPipelineReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MODEL_NAME=from-file\nFORUM_BOARD=31\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("FORUM_BOARD", "42")
	// godotenv only sets unset variables; clear MODEL_NAME so the file wins.
	t.Setenv("MODEL_NAME", "")
	require.NoError(t, os.Unsetenv("MODEL_NAME"))

	cfg, err := config.LoadPipeline()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.ModelName)
	require.Equal(t, "42", cfg.ForumBoard)
}

func TestLoadWorkerDefaults(t *testing.T) {
	noDotenv(t)
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("ELASTICSEARCH_INDEX", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "sentiment_reports", cfg.ElasticsearchIndex)
	require.Len(t, cfg.KafkaBrokers, 1)
	require.Equal(t, "kafka:9092", cfg.KafkaBrokers[0])
	require.Equal(t, "sentiment_requests", cfg.KafkaTopic)
	require.Equal(t, "sentiment_reports", cfg.KafkaReportTopic)
	require.Equal(t, "sentiment-worker", cfg.KafkaConsumer)
}

func TestLoadWorkerOverrides(t *testing.T) {
	noDotenv(t)
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "custom_topic")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_BATCH_SIZE", "3")
	t.Setenv("EXTRACT_WORKERS", "3")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom", cfg.ElasticsearchIndex)
	require.Len(t, cfg.KafkaBrokers, 2)
	require.Equal(t, "broker-a:29092", cfg.KafkaBrokers[0])
	require.Equal(t, "custom_topic", cfg.KafkaTopic)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 3, cfg.BatchSize)
	require.Equal(t, 3, cfg.ExtractWorkers)
}

func TestLoadAPI(t *testing.T) {
	noDotenv(t)
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_PAGE_SIZE", "15")
	t.Setenv("API_MAX_PAGE_SIZE", "200")
	t.Setenv("API_QUERY_TIMEOUT", "30s")
	t.Setenv("ELASTICSEARCH_ADDR", "http://api-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "api-index")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultPage)
	require.Equal(t, 200, cfg.MaxPage)
	require.Equal(t, 30*time.Second, cfg.QueryTimeout)
	require.Equal(t, "http://api-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "api-index", cfg.ElasticsearchIndex)
}

func TestLoadAPIPageSizeExceedsMax(t *testing.T) {
	noDotenv(t)
	t.Setenv("API_PAGE_SIZE", "50")
	t.Setenv("API_MAX_PAGE_SIZE", "10")

	_, err := config.LoadAPI()
	require.Error(t, err)
}

func TestLoadRetention(t *testing.T) {
	noDotenv(t)
	t.Setenv("ELASTICSEARCH_ADDR", "http://ret-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "ret-index")
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_MAX_AGE", "36h")
	t.Setenv("RETENTION_BATCH_SIZE", "123")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 36*time.Hour, cfg.MaxAge)
	require.Equal(t, 123, cfg.BatchSize)
	require.Equal(t, "http://ret-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "ret-index", cfg.ElasticsearchIndex)
}
