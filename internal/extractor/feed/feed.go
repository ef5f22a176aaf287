// Package feed fetches subreddit RSS feeds and turns keyword hits into
// market signals.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/esomin/gpu-market-intel/internal/retry"
	"github.com/esomin/gpu-market-intel/pkg/models"
)

// DefaultFanOut bounds how many subreddits are fetched concurrently per
// ExtractAll call.
const DefaultFanOut = 4

// DefaultKeywords is the curated keyword set FeedExtractor matches against
// every post's title + body.
var DefaultKeywords = []string{
	"New Release", "Leak", "Issues", "Price Drop", "Used Market",
}

// DefaultRateLimitWait is how long to back off on an HTTP 429 before the
// single configured retry.
const DefaultRateLimitWait = 60 * time.Second

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// rssFeed mirrors the subset of RSS 2.0 this extractor needs.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Extractor fetches subreddit feeds and produces MarketSignal candidates.
type Extractor struct {
	client        *retryablehttp.Client
	subreddits    []string
	keywords      []string
	rateLimitWait time.Duration
	retryCfg      retry.Config
	fanOut        int
	logger        *slog.Logger
	feedURLFn     func(subreddit string) string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSubreddits overrides the default {nvidia, pcmasterrace} set.
func WithSubreddits(subreddits ...string) Option {
	return func(e *Extractor) { e.subreddits = subreddits }
}

// WithKeywords overrides DefaultKeywords.
func WithKeywords(keywords ...string) Option {
	return func(e *Extractor) { e.keywords = keywords }
}

// WithRateLimitWait overrides DefaultRateLimitWait.
func WithRateLimitWait(d time.Duration) Option {
	return func(e *Extractor) { e.rateLimitWait = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithHTTPClient overrides the underlying retryablehttp.Client, for tests
// pointed at a local httptest.Server.
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(e *Extractor) { e.client = client }
}

// WithRetryConfig overrides the backoff schedule used for the general
// (non-429) fetch path — the same Retryer PriceExtractor's historical fetch
// goes through.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Extractor) { e.retryCfg = cfg }
}

// WithFanOut overrides DefaultFanOut.
func WithFanOut(n int) Option {
	return func(e *Extractor) { e.fanOut = n }
}

// New constructs an Extractor over the default {nvidia, pcmasterrace}
// subreddits and DefaultKeywords.
func New(opts ...Option) *Extractor {
	client := retryablehttp.NewClient()
	client.RetryMax = 0 // the 429 path below owns its own single retry; the
	// general path is retried explicitly via the Retryer in fetchViaRetryer
	client.Logger = nil

	e := &Extractor{
		client:        client,
		subreddits:    []string{"nvidia", "pcmasterrace"},
		keywords:      DefaultKeywords,
		rateLimitWait: DefaultRateLimitWait,
		retryCfg:      retry.DefaultConfig(),
		fanOut:        DefaultFanOut,
		logger:        slog.Default(),
		feedURLFn:     feedURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// feedURL returns the RSS endpoint for a subreddit.
func feedURL(subreddit string) string {
	return fmt.Sprintf("https://www.reddit.com/r/%s/.rss", subreddit)
}

// overrideFeedURLForTest points every feed fetch at a fixed base URL,
// ignoring the subreddit, so tests can target an httptest.Server.
func (e *Extractor) overrideFeedURLForTest(baseURL string) {
	e.feedURLFn = func(subreddit string) string { return baseURL }
}

// ExtractAll fetches every configured subreddit's feed and returns the
// matched signals. A feed-level parse error skips that subreddit entirely
// with a logged warning rather than aborting the whole run. Subreddits are
// fetched with bounded concurrency (e.fanOut).
func (e *Extractor) ExtractAll(ctx context.Context) ([]models.MarketSignal, error) {
	results := make([][]models.MarketSignal, len(e.subreddits))
	sem := make(chan struct{}, e.fanOut)
	var wg sync.WaitGroup
	for i, subreddit := range e.subreddits {
		wg.Add(1)
		go func(i int, subreddit string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			posts, err := e.fetchFeed(ctx, subreddit)
			if err != nil {
				e.logger.WarnContext(ctx, "feed extraction skipped subreddit", "subreddit", subreddit, "error", err)
				return
			}
			results[i] = matchKeywords(posts, e.keywords)
		}(i, subreddit)
	}
	wg.Wait()

	var signals []models.MarketSignal
	for _, s := range results {
		signals = append(signals, s...)
	}
	return signals, nil
}

func (e *Extractor) fetchFeed(ctx context.Context, subreddit string) ([]models.RawFeedPost, error) {
	body, err := e.fetchWithRateLimitRetry(ctx, e.feedURLFn(subreddit))
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", subreddit, err)
	}

	posts := make([]models.RawFeedPost, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		published, _ := time.Parse(time.RFC1123Z, item.PubDate)
		posts = append(posts, models.RawFeedPost{
			Title:     item.Title,
			Body:      item.Description,
			URL:       item.Link,
			Subreddit: subreddit,
			Published: published,
		})
	}
	return posts, nil
}

// fetchWithRateLimitRetry implements spec's 429 handling: a bounded wait
// then exactly one retry, distinct from the Retryer's general-purpose
// backoff schedule used for 5xx/connection errors (fetchViaRetryer).
func (e *Extractor) fetchWithRateLimitRetry(ctx context.Context, url string) ([]byte, error) {
	body, status, err := e.fetchViaRetryer(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusTooManyRequests {
		return body, nil
	}

	timer := time.NewTimer(e.rateLimitWait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}

	body, status, err = e.fetchViaRetryer(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("feed fetch: unexpected status %d after rate-limit retry", status)
	}
	return body, nil
}

// fetchViaRetryer runs the raw fetch through the same Retryer-backed
// classification PriceExtractor's historical fetch uses: connection errors
// and 5xx are transient and retried per e.retryCfg, other non-200/429
// statuses are permanent. A 429 is passed straight through unretried here —
// it's handled by the bounded single wait-then-retry in
// fetchWithRateLimitRetry instead.
func (e *Extractor) fetchViaRetryer(ctx context.Context, url string) ([]byte, int, error) {
	var body []byte
	var status int

	err := retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		b, s, ferr := e.doFetch(ctx, url)
		if ferr != nil {
			return ferr
		}
		if s >= http.StatusInternalServerError {
			return retry.Transient("feed fetch", s, fmt.Errorf("server error"))
		}
		if s != http.StatusOK && s != http.StatusTooManyRequests {
			return retry.Permanent("feed fetch", s, fmt.Errorf("unexpected status"))
		}
		body, status = b, s
		return nil
	})
	return body, status, err
}

// doFetch performs a single raw HTTP fetch with no status-code
// classification — that's fetchViaRetryer's job.
func (e *Extractor) doFetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, retry.Permanent("feed request", 0, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, retry.Transient("feed fetch", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, retry.Transient("feed read", resp.StatusCode, err)
	}
	return body, resp.StatusCode, nil
}

// matchKeywords scans each post's title+body for every keyword, at most
// once per post per keyword.
func matchKeywords(posts []models.RawFeedPost, keywords []string) []models.MarketSignal {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var signals []models.MarketSignal
	for _, post := range posts {
		haystack := strings.ToLower(post.Title + " " + post.Body)
		for _, keyword := range keywords {
			if !strings.Contains(haystack, strings.ToLower(keyword)) {
				continue
			}
			signals = append(signals, models.MarketSignal{
				Keyword:      strings.ToLower(keyword),
				Date:         today,
				PostURL:      post.URL,
				PostTitle:    post.Title,
				Subreddit:    post.Subreddit,
				MentionCount: 1,
			})
		}
	}
	return signals
}
