package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DeafMist/gpu-opinion-radar/internal/models"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	Queries        *prometheus.CounterVec
	PostsFound     prometheus.Histogram
	PostFailures   *prometheus.CounterVec
	TextItems      *prometheus.CounterVec
	Predictions    *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	ItemsDiscarded prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_queries_total",
			Help: "Query runs by outcome (ok, empty, invalid, error)",
		}, []string{"outcome"}),
		PostsFound: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opinion_posts_discovered",
			Help:    "Posts returned by discovery per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		PostFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_post_failures_total",
			Help: "Posts whose extraction failed, by reason",
		}, []string{"reason"}),
		TextItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_text_items_total",
			Help: "Extracted text items by source (body, comment)",
		}, []string{"source"}),
		Predictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_predictions_total",
			Help: "Classified items by label",
		}, []string{"label"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opinion_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ItemsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "opinion_items_discarded_total",
			Help: "Text items left empty by the character filter",
		}),
	}
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) queryDone(outcome string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) postsDiscovered(n int) {
	if m == nil {
		return
	}
	m.PostsFound.Observe(float64(n))
}

func (m *Metrics) postFailed(reason string) {
	if m == nil {
		return
	}
	m.PostFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) itemsExtracted(items []models.TextItem) {
	if m == nil {
		return
	}
	for _, it := range items {
		m.TextItems.WithLabelValues(string(it.Source)).Inc()
	}
}

func (m *Metrics) itemsDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsDiscarded.Add(float64(n))
}

func (m *Metrics) predicted(results []models.ClassificationResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.Predictions.WithLabelValues(string(r.Label)).Inc()
	}
}
