// Package extract pulls the body and visible comments out of a rendered post.
package extract

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

var ErrExtractionTimeout = errors.New("extract: post content did not appear")

// replyPrefix matches the "@nickname 답글" marker the forum prepends to replies.
var replyPrefix = regexp.MustCompile(`^@[^\s\p{Z}]+[\s\p{Z}]+답글[\s\p{Z}]*`)

// Extractor reads posts through a render session.
type Extractor struct {
	wait time.Duration
	log  *slog.Logger
}

// New creates an Extractor that waits up to wait for the post content.
func New(wait time.Duration, log *slog.Logger) *Extractor {
	return &Extractor{wait: wait, log: logger.OrDiscard(log)}
}

// Extract returns the body (when present) followed by the visible comments of ref.
func (e *Extractor) Extract(ctx context.Context, sess render.Session, ref models.PostRef) ([]models.TextItem, error) {
	markup, err := sess.Render(ctx, ref.URL, forum.PostContent, e.wait)
	if err != nil {
		if errors.Is(err, render.ErrNotReady) {
			return nil, fmt.Errorf("%w: %w", ErrExtractionTimeout, err)
		}
		return nil, fmt.Errorf("render post %s: %w", ref.ID, err)
	}

	items, err := ParsePost(markup, ref.ID)
	if err != nil {
		return nil, err
	}

	e.log.Debug("post extracted", slog.String("post_id", ref.ID), slog.Int("items", len(items)))
	return items, nil
}

// ParsePost extracts text items from the markup of one post page.
// Comments carrying the secret marker are never returned.
func ParsePost(markup, postID string) ([]models.TextItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse post %s: %w", postID, err)
	}

	var items []models.TextItem

	body := doc.Find(forum.PostContent).First().Find(forum.PostBody).First()
	if body.Length() > 0 {
		if text := FlattenText(body); text != "" {
			items = append(items, models.TextItem{PostID: postID, Source: models.SourceBody, RawText: text})
		}
	}

	doc.Find(forum.Comments).Each(func(_ int, c *goquery.Selection) {
		if c.Find(forum.SecretMarker).Length() > 0 {
			return
		}
		text := StripReplyPrefix(FlattenText(c))
		if text == "" {
			return
		}
		items = append(items, models.TextItem{PostID: postID, Source: models.SourceComment, RawText: text})
	})

	return items, nil
}

// StripReplyPrefix removes one leading "@nickname 답글" marker and the
// whitespace after it. Text without the marker is returned unchanged.
func StripReplyPrefix(text string) string {
	loc := replyPrefix.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[loc[1]:]
}
