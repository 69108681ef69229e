// Package discovery finds the most recent forum posts matching a search query.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/DeafMist/gpu-opinion-radar/internal/forum"
	"github.com/DeafMist/gpu-opinion-radar/internal/logger"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
	"github.com/DeafMist/gpu-opinion-radar/internal/render"
)

// DefaultLimit caps how many posts one query looks at.
const DefaultLimit = 5

var postIDField = regexp.MustCompile(`(?:^|[?&;/])` + regexp.QuoteMeta(forum.PostIDParam) + `=(\d+)`)

var (
	ErrInvalidQuery     = errors.New("discovery: query is empty")
	ErrDiscoveryTimeout = errors.New("discovery: results list did not appear")
)

// Discoverer searches one forum board.
type Discoverer struct {
	site forum.Site
	wait time.Duration
	log  *slog.Logger
}

// New creates a Discoverer that waits up to wait for the results list.
func New(site forum.Site, wait time.Duration, log *slog.Logger) *Discoverer {
	return &Discoverer{site: site, wait: wait, log: logger.OrDiscard(log)}
}

// ValidateQuery trims query and rejects it when nothing is left.
func ValidateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrInvalidQuery
	}
	return query, nil
}

// Discover returns at most limit posts for query in the order the forum lists
// them. A limit <= 0 means DefaultLimit.
func (d *Discoverer) Discover(ctx context.Context, sess render.Session, query string, limit int) ([]models.PostRef, error) {
	query, err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	searchURL := d.site.SearchURL(query)
	d.log.Info("searching forum", slog.String("url", searchURL))

	markup, err := sess.Render(ctx, searchURL, forum.ResultsContainer, d.wait)
	if err != nil {
		if errors.Is(err, render.ErrNotReady) {
			return nil, fmt.Errorf("%w: %w", ErrDiscoveryTimeout, err)
		}
		return nil, fmt.Errorf("render search page: %w", err)
	}

	refs, err := ParseResults(markup, d.site, limit)
	if err != nil {
		return nil, err
	}

	d.log.Info("posts discovered", slog.String("query", query), slog.Int("count", len(refs)))
	return refs, nil
}

// ParseResults reads post links from a rendered search page. Links whose
// wr_id does not start with a digit are skipped and repeated ids keep their
// first position.
func ParseResults(markup string, site forum.Site, limit int) ([]models.PostRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	seen := make(map[string]struct{})
	refs := make([]models.PostRef, 0, limit)

	doc.Find(forum.ResultsContainer).First().Find(forum.ResultAnchors).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		id := postID(href)
		if id == "" {
			return true
		}
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
		refs = append(refs, models.PostRef{ID: id, URL: site.PostURL(id)})
		return len(refs) < limit
	})

	return refs, nil
}

// postID returns the leading digits of the first wr_id field in href, so
// "wr_id=8abc" yields "8" and "wr_id=5;x" yields "5".
func postID(href string) string {
	m := postIDField.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}
