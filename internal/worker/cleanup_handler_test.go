package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvlm/internal/tasks"
)

type fakeCleaner struct {
	batches []int
	removed int
	err     error
}

func (f *fakeCleaner) CleanupExpired(_ context.Context, batch int) (int, error) {
	f.batches = append(f.batches, batch)
	return f.removed, f.err
}

func newHandler(c *fakeCleaner) *HistoryCleanupHandler {
	return NewHistoryCleanupHandler(c, 200, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHistoryCleanupHandler(t *testing.T) {
	cleaner := &fakeCleaner{removed: 3}
	task, err := tasks.NewHistoryCleanupTask(0, "cid-1")
	require.NoError(t, err)

	require.NoError(t, newHandler(cleaner).ProcessTask(context.Background(), task))
	assert.Equal(t, []int{200}, cleaner.batches)

	task, err = tasks.NewHistoryCleanupTask(25, "cid-2")
	require.NoError(t, err)
	require.NoError(t, newHandler(cleaner).ProcessTask(context.Background(), task))
	assert.Equal(t, []int{200, 25}, cleaner.batches)
}

func TestHistoryCleanupHandlerErrors(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("db down")}
	task, err := tasks.NewHistoryCleanupTask(10, "cid")
	require.NoError(t, err)

	err = newHandler(cleaner).ProcessTask(context.Background(), task)
	assert.EqualError(t, err, "db down")

	bad := asynq.NewTask(tasks.TypeHistoryCleanup, []byte("{"))
	err = newHandler(&fakeCleaner{}).ProcessTask(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewServeMuxRoutesCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	mux := NewServeMux(newHandler(cleaner))
	task, err := tasks.NewHistoryCleanupTask(5, "cid")
	require.NoError(t, err)

	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Equal(t, []int{5}, cleaner.batches)
}
