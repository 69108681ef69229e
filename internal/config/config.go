package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Pipeline configures the forum scraper, the text analyzer and the model client.
type Pipeline struct {
	ForumBaseURL   string
	ForumBoard     string
	UserAgent      string
	PostLimit      int
	WaitTimeout    time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	FetchInterval  time.Duration
	ExtractWorkers int

	ModelEndpoint    string
	ModelName        string
	ModelTimeout     time.Duration
	TokenizerPath    string
	SequenceLength   int
	PredictBatchSize int
	MorphEndpoint    string
}

// Worker holds configuration for the Kafka -> pipeline -> Elasticsearch worker.
type Worker struct {
	Common
	Pipeline
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaReportTopic string
	KafkaConsumer    string
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
	MetricsAddr      string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Pipeline
	BindAddr     string
	DefaultPage  int
	MaxPage      int
	QueryTimeout time.Duration
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// Analyze configures the one-shot CLI.
type Analyze struct {
	Pipeline
}

// LoadPipeline builds the shared pipeline settings from environment variables.
func LoadPipeline() (*Pipeline, error) {
	loadDotenv()

	c := &Pipeline{
		ForumBaseURL:   strings.TrimRight(getEnv("FORUM_BASE_URL", "https://coolenjoy.net"), "/"),
		ForumBoard:     getEnv("FORUM_BOARD", "28"),
		UserAgent:      getEnv("FORUM_USER_AGENT", defaultUserAgent),
		PostLimit:      getInt("DISCOVERY_LIMIT", 5),
		WaitTimeout:    getDuration("RENDER_WAIT_TIMEOUT", "10s"),
		PollInterval:   getDuration("RENDER_POLL_INTERVAL", "500ms"),
		RequestTimeout: getDuration("RENDER_REQUEST_TIMEOUT", "15s"),
		FetchInterval:  getDuration("FETCH_INTERVAL", "1s"),
		ExtractWorkers: getInt("EXTRACT_WORKERS", 1),

		ModelEndpoint:    strings.TrimRight(getEnv("MODEL_ENDPOINT", "http://model:8501"), "/"),
		ModelName:        getEnv("MODEL_NAME", "sentiment"),
		ModelTimeout:     getDuration("MODEL_TIMEOUT", "10s"),
		TokenizerPath:    getEnv("TOKENIZER_PATH", "./model/tokenizer.json"),
		SequenceLength:   getInt("SEQUENCE_LENGTH", 100),
		PredictBatchSize: getInt("PREDICT_BATCH_SIZE", 256),
		MorphEndpoint:    strings.TrimRight(getEnv("MORPH_ENDPOINT", ""), "/"),
	}

	if c.PostLimit <= 0 {
		return nil, fmt.Errorf("DISCOVERY_LIMIT must be positive")
	}
	if c.WaitTimeout <= 0 {
		return nil, fmt.Errorf("RENDER_WAIT_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		return nil, fmt.Errorf("RENDER_POLL_INTERVAL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return nil, fmt.Errorf("RENDER_REQUEST_TIMEOUT must be positive")
	}
	if c.FetchInterval < 0 {
		return nil, fmt.Errorf("FETCH_INTERVAL cannot be negative")
	}
	if c.ExtractWorkers <= 0 {
		return nil, fmt.Errorf("EXTRACT_WORKERS must be positive")
	}
	if c.SequenceLength <= 0 {
		return nil, fmt.Errorf("SEQUENCE_LENGTH must be positive")
	}
	if c.PredictBatchSize <= 0 {
		return nil, fmt.Errorf("PREDICT_BATCH_SIZE must be positive")
	}
	if c.ModelTimeout <= 0 {
		return nil, fmt.Errorf("MODEL_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:           loadCommon(),
		Pipeline:         *p,
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "sentiment_requests"),
		KafkaReportTopic: getEnv("KAFKA_REPORT_TOPIC", "sentiment_reports"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "sentiment-worker"),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 10000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
		MetricsAddr:      getEnv("WORKER_METRICS_ADDR", ""),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:       loadCommon(),
		Pipeline:     *p,
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:  getInt("API_PAGE_SIZE", 20),
		MaxPage:      getInt("API_MAX_PAGE_SIZE", 100),
		QueryTimeout: getDuration("API_QUERY_TIMEOUT", "2m"),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.QueryTimeout <= 0 {
		return nil, fmt.Errorf("API_QUERY_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	loadDotenv()

	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadAnalyze builds the CLI config from environment variables.
func LoadAnalyze() (*Analyze, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}
	return &Analyze{Pipeline: *p}, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "sentiment_reports"),
	}
}

// loadDotenv reads ENV_FILE (default .env) without overriding variables
// that are already set. A missing file is not an error.
func loadDotenv() {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
