// Package price fetches GPU listing pages and their historical price charts
// for every chipset in the closed RTX 4070 set.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/esomin/gpu-market-intel/internal/retry"
	"github.com/esomin/gpu-market-intel/pkg/models"
)

// DefaultFanOut bounds how many listings' historical-price fetches run
// concurrently per ExtractChipset call.
const DefaultFanOut = 4

// browserUserAgent is used on both the chromedp navigation (which also
// defaults to a Chrome UA, set explicitly for consistency) and the plain
// HTTP client for the historical-price JSON endpoint.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.0"

// HistoryWindowDays bounds how far back historical-price points are kept.
const HistoryWindowDays = 90

// listingSearchURL builds the 다나와 search URL for a chipset query.
func listingSearchURL(chipset models.Chipset) string {
	return fmt.Sprintf("https://search.danawa.com/dsearch.php?query=%s", strings.ReplaceAll(string(chipset), " ", "+"))
}

// historyURL builds the historical-price JSON endpoint for a listing id.
func historyURL(listingID string) string {
	return fmt.Sprintf("https://prod.danawa.com/info/dpg/ajax/priceChangeHistoryMonthAjax.php?productSeq=%s", listingID)
}

// listingRow is what the HTML walker extracts per product-list row before
// the historical fetch enriches it.
type listingRow struct {
	RawProductName string
	Price          decimal.Decimal
	ListingID      string
	SourceURL      string
}

// historyPoint mirrors one entry in the historical-price JSON payload.
type historyPoint struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
}

// BrowserRunner abstracts chromedp.Run so tests can substitute a fake.
type BrowserRunner interface {
	RenderedHTML(ctx context.Context, url string) (string, error)
}

// chromedpRunner is the production BrowserRunner, backed by a headless
// Chrome instance.
type chromedpRunner struct{}

func (chromedpRunner) RenderedHTML(ctx context.Context, url string) (string, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(browserUserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var outerHTML string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &outerHTML),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return outerHTML, nil
}

// Extractor fetches listings and historical prices for the closed chipset
// set.
type Extractor struct {
	browser      BrowserRunner
	httpClient   *retryablehttp.Client
	retryCfg     retry.Config
	fanOut       int
	logger       *slog.Logger
	historyURLFn func(listingID string) string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBrowser overrides the BrowserRunner, for tests.
func WithBrowser(b BrowserRunner) Option {
	return func(e *Extractor) { e.browser = b }
}

// WithHTTPClient overrides the retryablehttp.Client used for historical
// price fetches, for tests pointed at a local httptest.Server.
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(e *Extractor) { e.httpClient = client }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithRetryConfig overrides the retry schedule used for listing renders and
// historical fetches.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Extractor) { e.retryCfg = cfg }
}

// WithFanOut overrides DefaultFanOut.
func WithFanOut(n int) Option {
	return func(e *Extractor) { e.fanOut = n }
}

// New constructs an Extractor with a production chromedp BrowserRunner.
func New(opts ...Option) *Extractor {
	client := retryablehttp.NewClient()
	client.Logger = nil

	e := &Extractor{
		browser:      chromedpRunner{},
		httpClient:   client,
		retryCfg:     retry.DefaultConfig(),
		fanOut:       DefaultFanOut,
		logger:       slog.Default(),
		historyURLFn: historyURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// withHistoryURLBase points every historical-price fetch at a fixed base
// URL, ignoring the listing id, so tests can target an httptest.Server.
func (e *Extractor) withHistoryURLBase(baseURL string) *Extractor {
	e.historyURLFn = func(listingID string) string { return baseURL }
	return e
}

// ExtractChipset fetches every listing for chipset and enriches each with
// up to HistoryWindowDays of historical price points. A single listing's
// parse or fetch failure is logged and skipped; it never aborts the batch.
func (e *Extractor) ExtractChipset(ctx context.Context, chipset models.Chipset) ([]models.RawPriceRecord, error) {
	var renderedHTML string
	err := retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		h, rerr := e.browser.RenderedHTML(ctx, listingSearchURL(chipset))
		if rerr != nil {
			return retry.Transient("listing render", 0, rerr)
		}
		renderedHTML = h
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: render listing page: %w", chipset, err)
	}

	rows, err := parseListingRows(renderedHTML)
	if err != nil {
		return nil, fmt.Errorf("extract %s: parse listings: %w", chipset, err)
	}

	now := time.Now().UTC()

	// Fan out the historical-price fetches, bounded by e.fanOut, while
	// keeping results indexed by row so the final records slice preserves
	// listing order regardless of which goroutine finishes first.
	results := make([]*models.RawPriceRecord, len(rows))
	sem := make(chan struct{}, e.fanOut)
	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row listingRow) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			history, err := e.fetchHistory(ctx, row.ListingID)
			if err != nil {
				e.logger.WarnContext(ctx, "price extractor skipped listing",
					"chipset", chipset, "listing_id", row.ListingID, "error", err)
				return
			}

			results[i] = &models.RawPriceRecord{
				RawProductName: row.RawProductName,
				Price:          row.Price,
				Source:         models.SourceDanawa,
				SourceURL:      row.SourceURL,
				RecordedAt:     now,
				History:        history,
			}
		}(i, row)
	}
	wg.Wait()

	var records []models.RawPriceRecord
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, nil
}

// fetchHistory retrieves up to HistoryWindowDays of (recorded_at, price)
// points for a listing, through the Retryer.
func (e *Extractor) fetchHistory(ctx context.Context, listingID string) ([]models.RawPricePoint, error) {
	var points []models.RawPricePoint

	err := retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, e.historyURLFn(listingID), nil)
		if err != nil {
			return retry.Permanent("history request", 0, err)
		}
		req.Header.Set("User-Agent", browserUserAgent)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return retry.Transient("history fetch", 0, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.Transient("history fetch", resp.StatusCode, fmt.Errorf("rate limited"))
		}
		if resp.StatusCode >= 500 {
			return retry.Transient("history fetch", resp.StatusCode, fmt.Errorf("server error"))
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent("history fetch", resp.StatusCode, fmt.Errorf("unexpected status"))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Transient("history read", 0, err)
		}

		parsed, err := parseHistoryJSON(body)
		if err != nil {
			return retry.Permanent("history parse", 0, err)
		}
		points = parsed
		return nil
	})
	return points, err
}

func parseHistoryJSON(body []byte) ([]models.RawPricePoint, error) {
	var raw []historyPoint
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -HistoryWindowDays)
	points := make([]models.RawPricePoint, 0, len(raw))
	for _, p := range raw {
		recordedAt, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		if recordedAt.Before(cutoff) {
			continue
		}
		points = append(points, models.RawPricePoint{
			RecordedAt: recordedAt,
			Price:      decimal.NewFromInt(p.Price),
		})
	}
	return points, nil
}

// parseListingRows walks the rendered HTML's DOM for product list rows.
// The selector logic targets 다나와's list markup: each row is a
// `li.prod_item` with a `.prod_name a` title/link and a `.price_sect strong`
// price.
func parseListingRows(document string) ([]listingRow, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var rows []listingRow
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" && hasClass(n, "prod_item") {
			if row, ok := extractRow(n); ok {
				rows = append(rows, row)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return rows, nil
}

func extractRow(li *html.Node) (listingRow, bool) {
	var name, href, priceText string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "prod_name"):
				name = strings.TrimSpace(textContent(n))
				href = attr(n, "href")
				if href == "" {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.Type == html.ElementNode && c.Data == "a" {
							href = attr(c, "href")
						}
					}
				}
			case hasClass(n, "price_sect"):
				priceText = strings.TrimSpace(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(li)

	if name == "" || priceText == "" {
		return listingRow{}, false
	}

	price, err := decimal.NewFromString(sanitizeDigits(priceText))
	if err != nil || !price.IsPositive() {
		return listingRow{}, false
	}

	return listingRow{
		RawProductName: name,
		Price:          price,
		ListingID:      attr(li, "id"),
		SourceURL:      href,
	}, true
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.Contains(" "+a.Val+" ", " "+class+" ") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func sanitizeDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
