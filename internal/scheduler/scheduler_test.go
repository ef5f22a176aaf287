package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_RunsJobOutOfBand(t *testing.T) {
	s := New()
	var calls int32

	require.NoError(t, s.Register("price-crawl", "@every 1h", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, s.Trigger(context.Background(), "price-crawl"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	history := s.History("price-crawl")
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
}

func TestTrigger_DropsOverlappingFiring(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int32

	require.NoError(t, s.Register("reddit-collection", "@every 1h", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return nil
	}))

	go s.Trigger(context.Background(), "reddit-collection")
	<-started

	err := s.Trigger(context.Background(), "reddit-collection")
	require.NoError(t, err) // Trigger itself doesn't error, it just drops/ logs

	close(release)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "overlapping firing must be dropped, not queued")
}

func TestTrigger_UnknownJobErrors(t *testing.T) {
	s := New()
	err := s.Trigger(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestHistory_RetainsOnlyConfiguredSize(t *testing.T) {
	s := New(WithHistorySize(2))
	require.NoError(t, s.Register("price-crawl", "@every 1h", func(ctx context.Context) error { return nil }))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Trigger(context.Background(), "price-crawl"))
	}

	assert.Len(t, s.History("price-crawl"), 2)
}

func TestJobFailureIsIsolated(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("price-crawl", "@every 1h", func(ctx context.Context) error {
		return assert.AnError
	}))
	require.NoError(t, s.Register("reddit-collection", "@every 1h", func(ctx context.Context) error {
		return nil
	}))

	require.NoError(t, s.Trigger(context.Background(), "price-crawl"))
	require.NoError(t, s.Trigger(context.Background(), "reddit-collection"))

	assert.False(t, s.History("price-crawl")[0].Success)
	assert.True(t, s.History("reddit-collection")[0].Success)
}

func TestStartStop_Idempotent(t *testing.T) {
	s := New(WithGracePeriod(50 * time.Millisecond))
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
