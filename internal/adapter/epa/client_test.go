package epa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	"github.com/couchcryptid/bathing-water-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed serves one synthetic paged collection.
type fakeFeed struct {
	count   int
	perPage int
	// records returns the records of a page; nil means use the default generator.
	records func(page int) []map[string]any
	// status forces an HTTP status for a page.
	status map[int]int
	delay  time.Duration

	mu        sync.Mutex
	requested []int
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	f.mu.Lock()
	f.requested = append(f.requested, page)
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if code, ok := f.status[page]; ok {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}

	if f.perPage != 0 && perPage != f.perPage {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var list []map[string]any
	if f.records != nil {
		list = f.records(page)
	} else {
		list = defaultRecords(page, perPage, f.count)
	}
	if list == nil {
		list = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": f.count, "list": list})
}

func (f *fakeFeed) pages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.requested...)
	return out
}

// defaultRecords fills pages sequentially up to count records.
func defaultRecords(page, perPage, count int) []map[string]any {
	var list []map[string]any
	for i := (page - 1) * perPage; i < page*perPage && i < count; i++ {
		list = append(list, map[string]any{
			"beach_id":    fmt.Sprintf("b%d", i),
			"result_date": "2024-01-01T00:00:00",
		})
	}
	return list
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, feed http.Handler) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/api/Measurements/in-season", feed)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", 100, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())
}

func TestLastPage(t *testing.T) {
	assert.Equal(t, 0, LastPage(0, 100))
	assert.Equal(t, 1, LastPage(1, 100))
	assert.Equal(t, 1, LastPage(100, 100))
	assert.Equal(t, 2, LastPage(101, 100))
	assert.Equal(t, 3, LastPage(250, 100))
	assert.Equal(t, 0, LastPage(10, 0))
}

func TestFetchPage_Success(t *testing.T) {
	feed := &fakeFeed{count: 1, perPage: 100, records: func(int) []map[string]any {
		return []map[string]any{{"beach_id": "IE_1", "beach_name": "Killiney", "result_date": "2024-08-01T00:00:00", "e_coli_result": 12}}
	}}
	c := newTestClient(t, feed)

	page, err := FetchPage[domain.Measurement](context.Background(), c, InSeason, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, page.Count)
	require.Len(t, page.List, 1)
	assert.Equal(t, domain.BeachID("IE_1"), page.List[0].BeachID)
	assert.JSONEq(t, `12`, string(page.List[0].EColi))
	assert.Equal(t, []int{3}, feed.pages())
}

func TestFetchPage_StatusError(t *testing.T) {
	feed := &fakeFeed{count: 1, status: map[int]int{1: http.StatusServiceUnavailable}}
	c := newTestClient(t, feed)

	_, err := FetchPage[domain.Measurement](context.Background(), c, InSeason, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "503")
}

func TestFetchPage_DecodeError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))

	_, err := FetchPage[domain.Measurement](context.Background(), c, InSeason, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFetchPage_Timeout(t *testing.T) {
	feed := &fakeFeed{count: 1, delay: 200 * time.Millisecond}
	c := newTestClient(t, feed)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := FetchPage[domain.Measurement](context.Background(), c, InSeason, 1)
	require.Error(t, err)
}

func TestCollect_PaginationCompleteness(t *testing.T) {
	feed := &fakeFeed{count: 250, perPage: 100}
	c := newTestClient(t, feed)

	all, stats, err := Collect[domain.Measurement](context.Background(), c, InSeason)
	require.NoError(t, err)

	assert.Len(t, all, 250)
	assert.Equal(t, []int{1, 2, 3}, feed.pages())
	assert.Equal(t, FetchStats{LastPage: 3, Pages: 3, Records: 250}, stats)
}

func TestCollect_StopsAtEmptyPage(t *testing.T) {
	feed := &fakeFeed{count: 500, records: func(page int) []map[string]any {
		if page > 2 {
			return nil
		}
		return defaultRecords(page, 100, 500)
	}}
	c := newTestClient(t, feed)

	all, _, err := Collect[domain.Measurement](context.Background(), c, InSeason)
	require.NoError(t, err)
	assert.Len(t, all, 200)
	assert.Equal(t, []int{1, 2, 3}, feed.pages())
}

func TestCollect_FailedPageSkipped(t *testing.T) {
	feed := &fakeFeed{count: 300, status: map[int]int{2: http.StatusBadGateway}}
	c := newTestClient(t, feed)

	all, stats, err := Collect[domain.Measurement](context.Background(), c, InSeason)
	require.NoError(t, err)
	assert.Len(t, all, 200)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []int{1, 2, 3}, feed.pages())
}

func TestCollect_ProbeFailure(t *testing.T) {
	feed := &fakeFeed{count: 300, status: map[int]int{1: http.StatusInternalServerError}}
	c := newTestClient(t, feed)

	_, _, err := Collect[domain.Measurement](context.Background(), c, InSeason)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe in-season")
	assert.Equal(t, []int{1}, feed.pages())
}

func TestFetchAll_PaginationCompleteness(t *testing.T) {
	feed := &fakeFeed{count: 250, perPage: 100}
	c := newTestClient(t, feed)

	var mu sync.Mutex
	var got []domain.Measurement
	stats, err := FetchAll(context.Background(), c, InSeason, 10, func(_ int, batch []domain.Measurement) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, batch...)
	})
	require.NoError(t, err)

	assert.Len(t, got, 250)
	pages := feed.pages()
	sort.Ints(pages)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.Equal(t, FetchStats{LastPage: 3, Pages: 3, Records: 250}, stats)
}

func TestFetchAll_RespectsConcurrencyLimit(t *testing.T) {
	feed := &fakeFeed{count: 3000, delay: 20 * time.Millisecond}
	c := newTestClient(t, feed)

	var pages atomic.Int32
	_, err := FetchAll(context.Background(), c, InSeason, 4, func(int, []domain.Measurement) {
		pages.Add(1)
	})
	require.NoError(t, err)

	assert.Equal(t, int32(30), pages.Load())
	assert.LessOrEqual(t, feed.maxFlight.Load(), int32(4))
	assert.Greater(t, feed.maxFlight.Load(), int32(1), "pages should be fetched in parallel")
}

func TestFetchAll_FailedPagesContributeNothing(t *testing.T) {
	feed := &fakeFeed{count: 500, status: map[int]int{2: http.StatusInternalServerError, 4: http.StatusNotFound}}
	c := newTestClient(t, feed)

	var records atomic.Int32
	stats, err := FetchAll(context.Background(), c, InSeason, 10, func(_ int, batch []domain.Measurement) {
		records.Add(int32(len(batch)))
	})
	require.NoError(t, err)

	assert.Equal(t, int32(300), records.Load())
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 5, stats.Pages)
}

func TestFetchAll_ProbeFailureAbortsFeed(t *testing.T) {
	feed := &fakeFeed{count: 500, status: map[int]int{1: http.StatusBadGateway}}
	c := newTestClient(t, feed)

	called := false
	_, err := FetchAll(context.Background(), c, InSeason, 10, func(int, []domain.Measurement) { called = true })
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, []int{1}, feed.pages())
}

func TestFetchAll_FewerPagesThanPredicted(t *testing.T) {
	// The feed claims 1000 records but only serves two full pages.
	feed := &fakeFeed{count: 1000, records: func(page int) []map[string]any {
		if page > 2 {
			return nil
		}
		return defaultRecords(page, 100, 1000)
	}}
	c := newTestClient(t, feed)

	var records atomic.Int32
	stats, err := FetchAll(context.Background(), c, InSeason, 1, func(_ int, batch []domain.Measurement) {
		records.Add(int32(len(batch)))
	})
	require.NoError(t, err)

	assert.Equal(t, int32(200), records.Load())
	// With one worker the empty page 3 is seen before page 4 is dispatched.
	assert.Equal(t, []int{1, 2, 3}, feed.pages())
	assert.Equal(t, 3, stats.Pages)
}

func TestFetchAll_EmptyFeed(t *testing.T) {
	feed := &fakeFeed{count: 0}
	c := newTestClient(t, feed)

	called := false
	stats, err := FetchAll(context.Background(), c, InSeason, 10, func(int, []domain.Measurement) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 0, stats.LastPage)
}

// scanFeed spreads 1000 records over 10 pages; target records appear only on targetPages.
func scanFeed(target string, targetPages ...int) *fakeFeed {
	onPage := make(map[int]bool)
	for _, p := range targetPages {
		onPage[p] = true
	}
	return &fakeFeed{count: 1000, records: func(page int) []map[string]any {
		list := defaultRecords(page, 100, 1000)
		if onPage[page] {
			list[10]["beach_id"] = target
			list[10]["result_date"] = fmt.Sprintf("2024-0%d-01T00:00:00", page%9+1)
			list[50]["beach_id"] = target
			list[50]["result_date"] = fmt.Sprintf("2024-0%d-15T00:00:00", page%9+1)
		}
		return list
	}}
}

func isBeach(id string) func(domain.Measurement) bool {
	return func(m domain.Measurement) bool { return string(m.BeachID) == id }
}

func TestScanBackward_EarlyExit(t *testing.T) {
	feed := scanFeed("target", 7)
	c := newTestClient(t, feed)

	result, err := ScanBackward(context.Background(), c, InSeason, 10, isBeach("target"))
	require.NoError(t, err)

	assert.Equal(t, 7, result.Page)
	assert.Equal(t, []int{10, 9, 8, 7}, result.Visited)
	assert.Len(t, result.Matches, 2, "every match on the stopping page is returned")
	// Page 1 is only requested once, as the probe; pages 2-6 never.
	assert.Equal(t, []int{1, 10, 9, 8, 7}, feed.pages())
}

func TestScanBackward_StopsAtNewestMatchingPage(t *testing.T) {
	feed := scanFeed("target", 3, 9)
	c := newTestClient(t, feed)

	result, err := ScanBackward(context.Background(), c, InSeason, 10, isBeach("target"))
	require.NoError(t, err)
	assert.Equal(t, 9, result.Page)
	assert.Equal(t, []int{10, 9}, result.Visited)
}

func TestScanBackward_DepthLimit(t *testing.T) {
	feed := scanFeed("target", 2)
	c := newTestClient(t, feed)

	result, err := ScanBackward(context.Background(), c, InSeason, 5, isBeach("target"))
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Zero(t, result.Page)
	assert.Equal(t, []int{10, 9, 8, 7, 6}, result.Visited)
}

func TestScanBackward_FailedPageSkipped(t *testing.T) {
	feed := scanFeed("target", 8)
	feed.status = map[int]int{9: http.StatusBadGateway}
	c := newTestClient(t, feed)

	result, err := ScanBackward(context.Background(), c, InSeason, 10, isBeach("target"))
	require.NoError(t, err)
	assert.Equal(t, 8, result.Page)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []int{10, 9, 8}, result.Visited)
}

func TestScanBackward_SinglePageUsesProbe(t *testing.T) {
	feed := &fakeFeed{count: 3, records: func(int) []map[string]any {
		return []map[string]any{{"beach_id": "a"}, {"beach_id": "target"}, {"beach_id": "b"}}
	}}
	c := newTestClient(t, feed)

	result, err := ScanBackward(context.Background(), c, InSeason, 10, isBeach("target"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, []int{1}, feed.pages())
}

func TestClient_RequestShape(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"count":0,"list":[]}`))
	}))

	_, err := FetchPage[domain.Measurement](context.Background(), c, InSeason, 7)
	require.NoError(t, err)
	assert.Equal(t, "/api/Measurements/in-season", gotPath)
	assert.True(t, strings.Contains(gotQuery, "page=7"))
	assert.True(t, strings.Contains(gotQuery, "per_page=100"))
}

func TestFetchPage_SkipsUndecodableRecord(t *testing.T) {
	feed := &fakeFeed{count: 3, records: func(int) []map[string]any {
		return []map[string]any{
			{"beach_id": "a1", "sample_water_quality_status": 3},
			{"beach_id": map[string]any{"nested": true}},
			{"beach_id": "c3", "result_date": "2024-08-01"},
		}
	}}
	c := newTestClient(t, feed)

	page, err := FetchPage[domain.Measurement](context.Background(), c, InSeason, 1)
	require.NoError(t, err)
	require.Len(t, page.List, 2)
	assert.Equal(t, 1, page.Skipped)
	assert.Equal(t, 3, page.Received())
	assert.Equal(t, "3", page.List[0].Status.String())
	assert.Equal(t, domain.BeachID("c3"), page.List[1].BeachID)
}

func TestFetchAll_BadRecordOnFirstPageKeepsFeed(t *testing.T) {
	feed := &fakeFeed{count: 4, records: func(page int) []map[string]any {
		if page != 1 {
			return nil
		}
		return []map[string]any{
			{"beach_id": "a1", "result_date": "2024-08-01"},
			{"beach_id": []int{1}},
			{"beach_id": "c3", "result_date": "2024-08-01"},
			{"beach_id": "d4", "result_date": "2024-08-01"},
		}
	}}
	c := newTestClient(t, feed)

	var mu sync.Mutex
	var got []domain.BeachID
	stats, err := FetchAll(context.Background(), c, InSeason, 4, func(_ int, batch []domain.Measurement) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range batch {
			got = append(got, m.BeachID)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.BeachID{"a1", "c3", "d4"}, got)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []int{1}, feed.pages())
}

func TestCollect_PageOfOnlyBadRecordsDoesNotStop(t *testing.T) {
	feed := &fakeFeed{count: 250, perPage: 100, records: func(page int) []map[string]any {
		list := defaultRecords(page, 100, 250)
		if page == 2 {
			for i := range list {
				list[i]["beach_id"] = map[string]any{}
			}
		}
		return list
	}}
	c := newTestClient(t, feed)

	all, stats, err := Collect[domain.Measurement](context.Background(), c, InSeason)
	require.NoError(t, err)
	assert.Len(t, all, 150)
	assert.Equal(t, 100, stats.Skipped)
	assert.Equal(t, []int{1, 2, 3}, feed.pages())
}
