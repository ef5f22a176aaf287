package store

import (
	"context"
	"fmt"
	"time"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// SignalStore handles market signal persistence.
type SignalStore struct {
	db *DB
}

// NewSignalStore creates a new signal store.
func NewSignalStore(db *DB) *SignalStore {
	return &SignalStore{db: db}
}

// InsertSignal inserts a market signal or, on a (keyword, date, post_url)
// conflict, updates title/sentiment_score and increments mention_count by
// one. The increment-on-conflict captures re-processing of the same post
// while always converging to the latest sentiment calculation.
func (s *SignalStore) InsertSignal(ctx context.Context, signal models.MarketSignal) error {
	query := `
		INSERT INTO market_signals (keyword, post_title, post_url, subreddit, sentiment_score, mention_count, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(keyword, date, post_url) DO UPDATE SET
			post_title = excluded.post_title,
			sentiment_score = excluded.sentiment_score,
			mention_count = market_signals.mention_count + 1
	`

	mentionCount := signal.MentionCount
	if mentionCount < 1 {
		mentionCount = 1
	}

	return s.db.WithRetry(ctx, "insert_signal", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			signal.Keyword, signal.PostTitle, signal.PostURL, signal.Subreddit,
			signal.SentimentScore, mentionCount, signal.Date,
		)
		if err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
		return nil
	})
}

// KeywordCounts aggregates mention_count per keyword over [from, to],
// consumed by the sentiment analyzer's weighted-sum scoring.
func (s *SignalStore) KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `
		SELECT keyword, SUM(mention_count)
		FROM market_signals
		WHERE date >= ? AND date <= ?
		GROUP BY keyword
	`

	counts := make(map[string]int)
	err := s.db.WithRetry(ctx, "keyword_counts", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, from, to)
		if err != nil {
			return fmt.Errorf("keyword counts: %w", err)
		}
		defer rows.Close()

		for k := range counts {
			delete(counts, k)
		}
		for rows.Next() {
			var keyword string
			var count int
			if err := rows.Scan(&keyword, &count); err != nil {
				return fmt.Errorf("keyword counts: scan: %w", err)
			}
			counts[keyword] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
