// Package pipeline runs one query end to end: discover posts, extract their
// text, normalize it, classify it and fold the results into a report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/gpu-opinion-radar/internal/discovery"
	"github.com/DeafMist/gpu-opinion-radar/internal/extract"
	"github.com/DeafMist/gpu-opinion-radar/internal/logger"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/processing"
	"github.com/DeafMist/gpu-opinion-radar/internal/render"
)

// ErrEmptyResultSet means a run produced nothing to classify. The report
// returned alongside it carries the warnings explaining why.
var ErrEmptyResultSet = errors.New("pipeline: no text to classify")

const keywordMinRunes = 2

// Normalizer prepares extracted text for the classifier.
type Normalizer interface {
	Normalize(ctx context.Context, items []models.TextItem) ([]models.NormalizedItem, error)
}

// Classifier labels normalized items, one result per item in order.
type Classifier interface {
	Classify(ctx context.Context, items []models.NormalizedItem) ([]models.ClassificationResult, error)
}

// Options tunes a run.
type Options struct {
	// PostLimit caps discovered posts; <= 0 means discovery.DefaultLimit.
	PostLimit int
	// Workers is the number of posts extracted at once; <= 1 is sequential.
	Workers int
	// KeywordLimit is how many frequent tokens the report lists.
	KeywordLimit int
}

// Deps are the collaborators a run needs. Normalizer and Classifier may be
// nil for an Orchestrator that only collects text.
type Deps struct {
	Browser    render.Browser
	Discoverer *discovery.Discoverer
	Extractor  *extract.Extractor
	Normalizer Normalizer
	Classifier Classifier
	Metrics    *Metrics
}

// Orchestrator sequences the pipeline stages.
type Orchestrator struct {
	deps Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// Collection is the text gathered for one query before classification.
type Collection struct {
	Query    string
	Posts    []models.PostRef
	Items    []models.TextItem
	Warnings []string
}

// New creates an Orchestrator.
func New(deps Deps, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.KeywordLimit <= 0 {
		opts.KeywordLimit = 10
	}
	return &Orchestrator{deps: deps, opts: opts, log: logger.OrDiscard(log), now: time.Now}
}

// Collect discovers posts for query and extracts their text. Discovery and
// per-post failures become warnings; only an invalid query, a session that
// cannot be opened or cancellation are returned as errors.
func (o *Orchestrator) Collect(ctx context.Context, query string) (*Collection, error) {
	query, err := discovery.ValidateQuery(query)
	if err != nil {
		return nil, err
	}

	sess, err := o.deps.Browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open render session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			o.log.Warn("close render session", slog.Any("err", cerr))
		}
	}()

	col := &Collection{Query: query}

	start := time.Now()
	refs, err := o.deps.Discoverer.Discover(ctx, sess, query, o.opts.PostLimit)
	o.deps.Metrics.observeStage("discover", start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.log.Warn("discovery failed", slog.String("query", query), slog.Any("err", err))
		col.Warnings = append(col.Warnings, discoveryWarning(err))
		refs = nil
	}
	o.deps.Metrics.postsDiscovered(len(refs))
	col.Posts = refs

	if len(refs) == 0 {
		if err == nil {
			col.Warnings = append(col.Warnings, fmt.Sprintf("no posts found for %q", query))
		}
		return col, nil
	}

	start = time.Now()
	items, warnings, err := o.extractAll(ctx, sess, refs)
	o.deps.Metrics.observeStage("extract", start)
	if err != nil {
		return nil, err
	}
	col.Items = items
	col.Warnings = append(col.Warnings, warnings...)
	o.deps.Metrics.itemsExtracted(items)

	o.log.Info("text collected",
		slog.String("query", query),
		slog.Int("posts", len(refs)),
		slog.Int("items", len(items)),
	)
	return col, nil
}

// extractAll reads every post, at most Workers at a time. A failing post is
// logged and skipped; items keep discovery order.
func (o *Orchestrator) extractAll(ctx context.Context, sess render.Session, refs []models.PostRef) ([]models.TextItem, []string, error) {
	perPost := make([][]models.TextItem, len(refs))
	failures := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)

	for i, ref := range refs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			items, err := o.deps.Extractor.Extract(ctx, sess, ref)
			if err != nil {
				failures[i] = err
				return nil
			}
			perPost[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var items []models.TextItem
	var warnings []string
	for i, ref := range refs {
		if err := failures[i]; err != nil {
			reason := "error"
			if errors.Is(err, extract.ErrExtractionTimeout) {
				reason = "timeout"
			}
			o.deps.Metrics.postFailed(reason)
			o.log.Warn("post extraction failed",
				slog.String("post_id", ref.ID),
				slog.String("url", ref.URL),
				slog.Any("err", err),
			)
			warnings = append(warnings, fmt.Sprintf("post %s skipped: %s", ref.ID, reasonText(err)))
			continue
		}
		items = append(items, perPost[i]...)
	}
	return items, warnings, nil
}

// RunQuery produces a full report for query. When there is nothing to
// classify it returns a report with warnings together with ErrEmptyResultSet.
func (o *Orchestrator) RunQuery(ctx context.Context, query string) (*models.Report, error) {
	if o.deps.Normalizer == nil || o.deps.Classifier == nil {
		return nil, errors.New("pipeline: classifier not configured")
	}

	col, err := o.Collect(ctx, query)
	if err != nil {
		if errors.Is(err, discovery.ErrInvalidQuery) {
			o.deps.Metrics.queryDone("invalid")
		} else {
			o.deps.Metrics.queryDone("error")
		}
		return nil, err
	}

	report := o.newReport(col)

	if len(col.Items) == 0 {
		return o.empty(report, "no text was collected, nothing to analyze")
	}

	start := time.Now()
	normalized, err := o.deps.Normalizer.Normalize(ctx, col.Items)
	o.deps.Metrics.observeStage("normalize", start)
	if err != nil {
		o.deps.Metrics.queryDone("error")
		return nil, fmt.Errorf("normalize: %w", err)
	}
	o.deps.Metrics.itemsDiscarded(len(col.Items) - len(normalized))

	if len(normalized) == 0 {
		return o.empty(report, "collected text had no Korean content to analyze")
	}

	start = time.Now()
	results, err := o.deps.Classifier.Classify(ctx, normalized)
	o.deps.Metrics.observeStage("classify", start)
	if err != nil {
		o.deps.Metrics.queryDone("error")
		return nil, fmt.Errorf("classify: %w", err)
	}

	if err := Summarize(report, normalized, results); err != nil {
		o.deps.Metrics.queryDone("error")
		return nil, err
	}
	report.Keywords = processing.TopTokens(normalized, o.opts.KeywordLimit, keywordMinRunes)
	o.deps.Metrics.predicted(results)
	o.deps.Metrics.queryDone("ok")

	o.log.Info("query analyzed",
		slog.String("report_id", report.ID),
		slog.String("query", report.Query),
		slog.Int("total", report.Total),
		slog.String("dominant", string(report.Dominant)),
	)
	return report, nil
}

func (o *Orchestrator) newReport(col *Collection) *models.Report {
	counts, percentages := zeroTallies()
	return &models.Report{
		ID:          uuid.NewString(),
		Query:       col.Query,
		Timestamp:   o.now().UTC(),
		PostCount:   len(col.Posts),
		Items:       []models.ReportItem{},
		Counts:      counts,
		Percentages: percentages,
		Warnings:    col.Warnings,
	}
}

func (o *Orchestrator) empty(report *models.Report, warning string) (*models.Report, error) {
	report.Warnings = append(report.Warnings, warning)
	o.deps.Metrics.queryDone("empty")
	o.log.Warn("nothing to analyze", slog.String("query", report.Query), slog.Int("posts", report.PostCount))
	return report, ErrEmptyResultSet
}

func discoveryWarning(err error) string {
	if errors.Is(err, discovery.ErrDiscoveryTimeout) {
		return "forum search did not respond in time, no posts were analyzed"
	}
	return fmt.Sprintf("forum search failed: %v", err)
}

func reasonText(err error) string {
	if errors.Is(err, extract.ErrExtractionTimeout) {
		return "page did not load in time"
	}
	return err.Error()
}

// Metrics returns the collectors the orchestrator records into.
func (o *Orchestrator) Metrics() *Metrics {
	return o.deps.Metrics
}
