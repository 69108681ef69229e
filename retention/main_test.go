package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/gpu-opinion-radar/internal/config"
)

type stubPruner struct {
	maxAge    time.Duration
	batchSize int
	deleted   int64
	err       error
}

func (s *stubPruner) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	s.maxAge = maxAge
	s.batchSize = batchSize
	return s.deleted, s.err
}

func TestRunOncePassesRetentionWindow(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Retention{MaxAge: 720 * time.Hour, BatchSize: 500}

	p := &stubPruner{deleted: 12}
	require.Equal(t, int64(12), runOnce(context.Background(), log, p, cfg))
	require.Equal(t, 720*time.Hour, p.maxAge)
	require.Equal(t, 500, p.batchSize)

	require.Zero(t, runOnce(context.Background(), log, &stubPruner{err: errors.New("es down")}, cfg))
}
