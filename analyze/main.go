// Command analyze runs one forum sentiment query from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DeafMist/gpu-opinion-radar/internal/bootstrap"
	"github.com/DeafMist/gpu-opinion-radar/internal/config"
	"github.com/DeafMist/gpu-opinion-radar/internal/export"
	"github.com/DeafMist/gpu-opinion-radar/internal/logger"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/pipeline"
)

const previewRunes = 60

type options struct {
	limit     int
	workers   int
	crawlOnly bool
	out       string
}

// runner is the part of the orchestrator the command drives.
type runner interface {
	Collect(ctx context.Context, query string) (*pipeline.Collection, error)
	RunQuery(ctx context.Context, query string) (*models.Report, error)
}

type buildFunc func(ctx context.Context, opts options) (runner, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log := logger.New("analyze")
	cmd := newRootCmd(os.Stdout, func(ctx context.Context, opts options) (runner, error) {
		cfg, err := config.LoadAnalyze()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if opts.limit > 0 {
			cfg.PostLimit = opts.limit
		}
		if opts.workers > 0 {
			cfg.ExtractWorkers = opts.workers
		}

		stack, err := bootstrap.Pipeline(ctx, &cfg.Pipeline, bootstrap.Options{CollectOnly: opts.crawlOnly}, log)
		if err != nil {
			return nil, err
		}
		return stack.Orchestrator, nil
	})

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error("analyze failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, build buildFunc) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "analyze <query>",
		Short: "Analyze forum sentiment about a graphics card",
		Long: `Searches the graphics card board for the query, collects the most recent
posts with their visible comments and classifies every text as positive,
negative or neutral.

Examples:
  # Analyze the five most recent posts about a card
  analyze "RTX 5080"

  # Only collect texts; they are saved to coolenjoy_<query>_crawled.csv
  analyze "RTX 5080" --crawl-only

  # Collect texts into a file of your choice
  analyze "RTX 5080" --crawl-only --out texts.xlsx
`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.out != "" {
				switch strings.ToLower(filepath.Ext(opts.out)) {
				case ".csv", ".xlsx":
				default:
					return fmt.Errorf("--out must end in .csv or .xlsx, got %q", opts.out)
				}
			}

			r, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), out, r, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Number of posts to analyze (default from DISCOVERY_LIMIT)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Posts extracted in parallel (default from EXTRACT_WORKERS)")
	cmd.Flags().BoolVar(&opts.crawlOnly, "crawl-only", false, "Collect texts without classifying them")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write results to a .csv or .xlsx file (crawl-only default: coolenjoy_<query>_crawled.csv)")
	return cmd
}

func run(ctx context.Context, out io.Writer, r runner, query string, opts options) error {
	if opts.crawlOnly {
		col, err := r.Collect(ctx, query)
		if err != nil {
			return err
		}
		renderCollection(out, col)
		if len(col.Items) == 0 {
			return nil
		}
		path := opts.out
		if path == "" {
			path = crawlFileName(col.Query)
		}
		if err := writeFile(path, export.TextsTable(col.Items)); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSaved %d texts to %s\n", len(col.Items), path)
		return nil
	}

	report, err := r.RunQuery(ctx, query)
	if err != nil && !errors.Is(err, pipeline.ErrEmptyResultSet) {
		return err
	}
	renderReport(out, report)
	if opts.out != "" && report.Total > 0 {
		return writeFile(opts.out, export.ReportTable(report))
	}
	return nil
}

// crawlFileName is where --crawl-only saves texts when --out is not given.
func crawlFileName(query string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(query)
	return fmt.Sprintf("coolenjoy_%s_crawled.csv", name)
}

func writeFile(path string, t export.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.Write(f, path, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func renderCollection(w io.Writer, col *pipeline.Collection) {
	printWarnings(w, col.Warnings)

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Post", "Source", "Text"})
	for i, it := range col.Items {
		t.AppendRow(table.Row{i + 1, it.PostID, it.Source, preview(it.RawText)})
	}
	t.AppendFooter(table.Row{"Total", len(col.Items), "", fmt.Sprintf("Query: %s", col.Query)})

	fmt.Fprintf(w, "\nCollected %d texts from %d posts:\n", len(col.Items), len(col.Posts))
	t.Render()
}

func renderReport(w io.Writer, report *models.Report) {
	printWarnings(w, report.Warnings)
	if report.Total == 0 {
		fmt.Fprintf(w, "\nNothing to analyze for %q.\n", report.Query)
		return
	}

	summary := newTable(w)
	summary.AppendHeader(table.Row{"Sentiment", "Count", "Share"})
	// Display order follows the dashboard: positive, neutral, negative.
	for _, l := range []models.Label{models.LabelPositive, models.LabelNeutral, models.LabelNegative} {
		summary.AppendRow(table.Row{l.DisplayName(), report.Counts[l], fmt.Sprintf("%.1f%%", report.Percentages[l])})
	}
	summary.AppendFooter(table.Row{"Total", report.Total, ""})

	fmt.Fprintf(w, "\nSentiment for %q across %d posts:\n", report.Query, report.PostCount)
	summary.Render()

	detail := newTable(w)
	detail.AppendHeader(table.Row{"#", "Text", "Sentiment", "Confidence"})
	for i, it := range report.Items {
		detail.AppendRow(table.Row{i + 1, preview(it.Text), it.Label.DisplayName(), fmt.Sprintf("%.1f%%", it.Confidence)})
	}
	fmt.Fprintln(w, "\nDetails:")
	detail.Render()

	if len(report.Keywords) > 0 {
		fmt.Fprintf(w, "\nFrequent words: %s\n", strings.Join(report.Keywords, ", "))
	}
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "…"
}
