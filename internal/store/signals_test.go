package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

func TestInsertSignal_ConflictIncrementsMentionCount(t *testing.T) {
	db := newTestDB(t)
	store := NewSignalStore(db)
	ctx := context.Background()
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	signal := models.MarketSignal{
		Keyword: "rtx 4070", Date: date, PostURL: "https://reddit.com/r/buildapc/abc123",
		PostTitle: "anyone seen 4070 drops?", Subreddit: "buildapc", SentimentScore: 0.4, MentionCount: 1,
	}

	require.NoError(t, store.InsertSignal(ctx, signal))
	require.NoError(t, store.InsertSignal(ctx, signal))

	counts, err := store.KeywordCounts(ctx, date.Add(-time.Hour), date.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, counts["rtx 4070"])
}

func TestKeywordCounts_AggregatesAcrossPosts(t *testing.T) {
	db := newTestDB(t)
	store := NewSignalStore(db)
	ctx := context.Background()
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSignal(ctx, models.MarketSignal{
		Keyword: "new release", Date: date, PostURL: "https://reddit.com/post-a", MentionCount: 1,
	}))
	require.NoError(t, store.InsertSignal(ctx, models.MarketSignal{
		Keyword: "new release", Date: date, PostURL: "https://reddit.com/post-b", MentionCount: 1,
	}))

	counts, err := store.KeywordCounts(ctx, date, date)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["new release"])
}
