// Package render fetches forum pages and waits until a readiness selector
// is present in the markup.
package render

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotReady means the ready selector never appeared before the wait timeout.
	ErrNotReady = errors.New("render: page not ready before timeout")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("render: session closed")
)

// Browser opens rendering sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one browsing context owned by a single query run.
// Render may be called concurrently.
type Session interface {
	// Render loads pageURL and returns its markup once readySelector matches.
	// An empty readySelector returns the first successful load.
	Render(ctx context.Context, pageURL, readySelector string, timeout time.Duration) (string, error)
	Close() error
}
