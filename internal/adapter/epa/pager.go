package epa

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Probe is the first page of a feed together with the paging it implies.
type Probe[T any] struct {
	First    Page[T]
	Count    int
	LastPage int
}

// FetchStats summarizes one traversal of a feed.
type FetchStats struct {
	LastPage int // pages predicted by the probe
	Pages    int // pages requested, probe included
	Failed   int // pages that errored and contributed nothing
	Records  int // records handed to the caller
	Skipped  int // records dropped because they could not be decoded
}

// ProbeFeed requests page 1 of feed to learn its record count. An error here
// means the feed cannot be traversed at all.
func ProbeFeed[T any](ctx context.Context, c *Client, feed Feed) (Probe[T], error) {
	first, err := FetchPage[T](ctx, c, feed, 1)
	if err != nil {
		c.metrics.ProbeFailures.WithLabelValues(feed.Name).Inc()
		return Probe[T]{}, fmt.Errorf("probe %s: %w", feed.Name, err)
	}
	return Probe[T]{
		First:    first,
		Count:    first.Count,
		LastPage: LastPage(first.Count, c.perPage),
	}, nil
}

// Collect walks feed one page at a time from page 1 and returns every record.
// It stops after the predicted last page, at the first page that comes back
// empty, or once the reported count has been collected. A failed page is
// logged and skipped.
func Collect[T any](ctx context.Context, c *Client, feed Feed) ([]T, FetchStats, error) {
	probe, err := ProbeFeed[T](ctx, c, feed)
	if err != nil {
		return nil, FetchStats{}, err
	}

	stats := FetchStats{LastPage: probe.LastPage, Pages: 1, Skipped: probe.First.Skipped}
	all := append([]T(nil), probe.First.List...)
	received := probe.First.Received()
	if received == 0 {
		return all, stats, nil
	}

	for page := 2; page <= probe.LastPage && received < probe.Count; page++ {
		if err := ctx.Err(); err != nil {
			stats.Records = len(all)
			return all, stats, err
		}
		stats.Pages++
		batch, err := FetchPage[T](ctx, c, feed, page)
		if err != nil {
			stats.Failed++
			c.logger.Warn("page fetch failed", "feed", feed.Name, "page", page, "error", err)
			continue
		}
		if batch.Received() == 0 {
			break
		}
		received += batch.Received()
		stats.Skipped += batch.Skipped
		all = append(all, batch.List...)
	}

	stats.Records = len(all)
	return all, stats, nil
}

// FetchAll requests pages 1..LastPage of feed with at most concurrency
// requests in flight and passes each page's records to handle as they
// arrive. handle is called from multiple goroutines. Page 1 is served from
// the probe. Pages not yet started are skipped once a page comes back empty
// beyond them or the reported count has been reached. A failed page is logged
// and contributes nothing.
func FetchAll[T any](ctx context.Context, c *Client, feed Feed, concurrency int, handle func(page int, batch []T)) (FetchStats, error) {
	probe, err := ProbeFeed[T](ctx, c, feed)
	if err != nil {
		return FetchStats{}, err
	}

	stats := FetchStats{LastPage: probe.LastPage, Pages: 1}
	if probe.First.Received() == 0 {
		return stats, nil
	}
	handle(1, probe.First.List)

	var (
		records   atomic.Int64
		received  atomic.Int64 // records sent by the server, decodable or not
		skipped   atomic.Int64
		requested atomic.Int64
		failed    atomic.Int64
		emptyAt   atomic.Int64 // lowest page seen empty; 0 means none
	)
	records.Store(int64(len(probe.First.List)))
	received.Store(int64(probe.First.Received()))
	skipped.Store(int64(probe.First.Skipped))

	done := func(page int) bool {
		if received.Load() >= int64(probe.Count) {
			return true
		}
		e := emptyAt.Load()
		return e != 0 && int64(page) > e
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for page := 2; page <= probe.LastPage; page++ {
		if ctx.Err() != nil || done(page) {
			break
		}
		g.Go(func() error {
			if done(page) {
				return nil
			}
			requested.Add(1)
			batch, err := FetchPage[T](ctx, c, feed, page)
			if err != nil {
				failed.Add(1)
				c.logger.Warn("page fetch failed", "feed", feed.Name, "page", page, "error", err)
				return nil
			}
			if batch.Received() == 0 {
				markEmpty(&emptyAt, int64(page))
				return nil
			}
			received.Add(int64(batch.Received()))
			skipped.Add(int64(batch.Skipped))
			records.Add(int64(len(batch.List)))
			handle(page, batch.List)
			return nil
		})
	}
	_ = g.Wait()

	stats.Pages += int(requested.Load())
	stats.Failed = int(failed.Load())
	stats.Records = int(records.Load())
	stats.Skipped = int(skipped.Load())
	return stats, ctx.Err()
}

// markEmpty lowers the recorded empty page to page if it is smaller.
func markEmpty(emptyAt *atomic.Int64, page int64) {
	for {
		cur := emptyAt.Load()
		if cur != 0 && cur <= page {
			return
		}
		if emptyAt.CompareAndSwap(cur, page) {
			return
		}
	}
}

// ScanResult is the outcome of a backward scan of one feed.
type ScanResult[T any] struct {
	Matches []T   // every matching record on the page where the scan stopped
	Page    int   // page holding the matches, 0 when nothing matched
	Visited []int // pages examined by the scan, newest first
	Failed  int
}

// ScanBackward walks feed from its last page towards page 1, at most depth
// pages, and stops at the first page holding any record for which match
// returns true. Every match on that page is returned, since records within a
// page are not ordered by date.
//
// Stopping early assumes recent samples sit near the end of the feed. Older
// pages are never consulted once a match is found, even if the feed is out of
// order.
func ScanBackward[T any](ctx context.Context, c *Client, feed Feed, depth int, match func(T) bool) (ScanResult[T], error) {
	probe, err := ProbeFeed[T](ctx, c, feed)
	if err != nil {
		return ScanResult[T]{}, err
	}

	var result ScanResult[T]
	stop := probe.LastPage - depth
	if stop < 0 {
		stop = 0
	}
	for page := probe.LastPage; page > stop; page-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Visited = append(result.Visited, page)
		var batch Page[T]
		if page == 1 {
			batch = probe.First
		} else {
			batch, err = FetchPage[T](ctx, c, feed, page)
			if err != nil {
				result.Failed++
				c.logger.Warn("page fetch failed", "feed", feed.Name, "page", page, "error", err)
				continue
			}
		}

		for _, rec := range batch.List {
			if match(rec) {
				result.Matches = append(result.Matches, rec)
			}
		}
		if len(result.Matches) > 0 {
			result.Page = page
			return result, nil
		}
	}
	return result, nil
}
