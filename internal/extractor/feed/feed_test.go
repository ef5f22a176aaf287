package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePost = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
  <title>NVIDIA announces New Release of RTX 4070 lineup</title>
  <link>https://reddit.com/r/nvidia/post1</link>
  <description>Big price drop incoming, New Release New Release again</description>
  <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
</item>
<item>
  <title>Just a regular thread</title>
  <link>https://reddit.com/r/nvidia/post2</link>
  <description>nothing notable here</description>
  <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
</item>
</channel></rss>`

func newTestServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestExtractAll_MatchesKeywordsAtMostOncePerPost(t *testing.T) {
	srv := newTestServer(t, samplePost, http.StatusOK)
	defer srv.Close()

	e := New(WithSubreddits("nvidia"), WithKeywords("New Release", "Price Drop"))
	e.overrideFeedURLForTest(srv.URL)

	signals, err := e.ExtractAll(context.Background())
	require.NoError(t, err)

	newReleaseCount, priceDropCount := 0, 0
	for _, s := range signals {
		switch s.Keyword {
		case "new release":
			newReleaseCount++
		case "price drop":
			priceDropCount++
		}
	}
	assert.Equal(t, 1, newReleaseCount, "keyword must match at most once per post even with repeats")
	assert.Equal(t, 1, priceDropCount)
}

func TestExtractAll_SkipsSubredditOnParseFailure(t *testing.T) {
	srv := newTestServer(t, "not xml at all", http.StatusOK)
	defer srv.Close()

	e := New(WithSubreddits("nvidia"))
	e.overrideFeedURLForTest(srv.URL)

	signals, err := e.ExtractAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestFetchWithRateLimitRetry_RetriesOnceAfter429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(samplePost))
	}))
	defer srv.Close()

	e := New(WithSubreddits("nvidia"), WithRateLimitWait(10*time.Millisecond))
	e.overrideFeedURLForTest(srv.URL)

	signals, err := e.ExtractAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NotEmpty(t, signals)
}
