package models

import "time"

// MarketSignal is one keyword mention extracted from a feed post on a given
// day. Natural key: (Keyword, Date, PostURL) — FeedExtractor enforces at most
// one mention per post per keyword, so MentionCount only grows beyond 1 when
// a later pass re-observes the same post on the same day.
type MarketSignal struct {
	ID            int64
	Keyword       string
	Date          time.Time // truncated to day, no time-of-day component
	PostURL       string
	PostTitle     string
	Subreddit     string
	MentionCount  int
	SentimentScore float64 // stored as given; FeedExtractor leaves it at zero (the weighted score is computed over keyword counts by analyzer/sentiment)
	CreatedAt     time.Time
}

// RawFeedPost is a single entry parsed out of an RSS/Atom feed before
// keyword matching.
type RawFeedPost struct {
	Title     string
	Body      string
	URL       string
	Subreddit string
	Published time.Time
}
