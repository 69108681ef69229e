package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/DeafMist/gpu-opinion-radar/internal/logger"
)

// Options tune the colly-backed browser.
type Options struct {
	UserAgent      string
	RequestTimeout time.Duration
	// PollInterval separates readiness checks of the same page.
	PollInterval time.Duration
	// FetchInterval is the minimum spacing between two requests of one session.
	FetchInterval time.Duration
	Transport     http.RoundTripper
}

// CollyBrowser renders server-side pages with colly.
type CollyBrowser struct {
	opts Options
	log  *slog.Logger
}

// NewCollyBrowser creates a browser with the given options.
func NewCollyBrowser(opts Options, log *slog.Logger) *CollyBrowser {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	return &CollyBrowser{opts: opts, log: logger.OrDiscard(log)}
}

// NewSession opens a throttled session. Requests of one session share a
// single rate limiter so the forum sees at most one request per FetchInterval.
func (b *CollyBrowser) NewSession(_ context.Context) (Session, error) {
	limit := rate.Inf
	if b.opts.FetchInterval > 0 {
		limit = rate.Every(b.opts.FetchInterval)
	}
	return &collySession{
		opts:    b.opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     b.log,
	}, nil
}

type collySession struct {
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *collySession) Render(ctx context.Context, pageURL, readySelector string, timeout time.Duration) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; ; attempt++ {
		markup, err := s.fetch(waitCtx, pageURL)
		if err == nil {
			if readySelector == "" {
				return markup, nil
			}
			ready, perr := hasSelector(markup, readySelector)
			if perr == nil && ready {
				return markup, nil
			}
			lastErr = perr
		} else {
			lastErr = err
		}

		s.log.Debug("page not ready",
			slog.String("url", pageURL),
			slog.String("selector", readySelector),
			slog.Int("attempt", attempt),
			slog.Any("err", lastErr),
		)

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if lastErr != nil {
				return "", fmt.Errorf("%w: %s: %w", ErrNotReady, pageURL, lastErr)
			}
			return "", fmt.Errorf("%w: %s", ErrNotReady, pageURL)
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *collySession) fetch(ctx context.Context, pageURL string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	}
	if s.opts.UserAgent != "" {
		opts = append(opts, colly.UserAgent(s.opts.UserAgent))
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(s.opts.RequestTimeout)
	if s.opts.Transport != nil {
		c.WithTransport(s.opts.Transport)
	}

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("visit %s: %w", pageURL, err)
	}
	return string(body), nil
}

func (s *collySession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collySession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func hasSelector(markup, selector string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false, fmt.Errorf("parse html: %w", err)
	}
	return doc.Find(selector).Length() > 0, nil
}
