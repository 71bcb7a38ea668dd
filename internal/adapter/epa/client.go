package epa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/observability"
)

// ErrStatus is wrapped by page errors caused by a non-2xx response.
var ErrStatus = errors.New("unexpected status")

// Feed names one paged collection below the API root.
type Feed struct {
	Name string // label used in logs and metrics
	Path string // path below the base URL
}

var (
	Locations = Feed{Name: "locations", Path: "Locations"}
	InSeason  = Feed{Name: "in-season", Path: "Measurements/in-season"}
	OutSeason = Feed{Name: "out-season", Path: "Measurements/out-season"}
)

// MeasurementFeeds returns the in-season and out-season feeds in search order.
func MeasurementFeeds() []Feed {
	return []Feed{InSeason, OutSeason}
}

// Page is one response of a paged collection.
type Page[T any] struct {
	Count int
	List  []T
	// Skipped counts records on the page that could not be decoded as T.
	Skipped int
}

// Received is the number of records the server sent, decodable or not.
func (p Page[T]) Received() int { return len(p.List) + p.Skipped }

// LastPage returns the number of pages needed for count records.
func LastPage(count, perPage int) int {
	if count <= 0 || perPage <= 0 {
		return 0
	}
	return (count + perPage - 1) / perPage
}

// Client reads paged collections from the EPA bathing water API.
type Client struct {
	baseURL    string
	perPage    int
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an API client. timeout bounds every page request.
func NewClient(baseURL string, perPage int, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		perPage: perPage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// PerPage returns the page size used for every request.
func (c *Client) PerPage() int { return c.perPage }

func (c *Client) pageURL(feed Feed, page int) string {
	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(c.perPage)},
	}
	return fmt.Sprintf("%s/%s?%s", c.baseURL, feed.Path, params.Encode())
}

// FetchPage requests a single page of feed and decodes its records as T.
func FetchPage[T any](ctx context.Context, c *Client, feed Feed, page int) (Page[T], error) {
	start := time.Now()
	result, err := doRequest[T](ctx, c, feed, page)
	c.metrics.PageFetchDuration.WithLabelValues(feed.Name).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.PagesFetched.WithLabelValues(feed.Name, "error").Inc()
	case result.Received() == 0:
		c.metrics.PagesFetched.WithLabelValues(feed.Name, "empty").Inc()
	default:
		c.metrics.PagesFetched.WithLabelValues(feed.Name, "ok").Inc()
	}
	return result, err
}

func doRequest[T any](ctx context.Context, c *Client, feed Feed, page int) (Page[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(feed, page), nil)
	if err != nil {
		return Page[T]{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page[T]{}, fmt.Errorf("%s page %d request: %w", feed.Name, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page[T]{}, fmt.Errorf("%s page %d: %w %d: %s", feed.Name, page, ErrStatus, resp.StatusCode, body)
	}

	var body struct {
		Count int               `json:"count"`
		List  []json.RawMessage `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Page[T]{}, fmt.Errorf("%s page %d decode response: %w", feed.Name, page, err)
	}

	// Records are decoded one by one so a single malformed record costs only itself.
	result := Page[T]{Count: body.Count, List: make([]T, 0, len(body.List))}
	for i, item := range body.List {
		var rec T
		if err := json.Unmarshal(item, &rec); err != nil {
			result.Skipped++
			c.logger.Warn("record skipped", "feed", feed.Name, "page", page, "index", i, "error", err)
			continue
		}
		result.List = append(result.List, rec)
	}
	return result, nil
}
