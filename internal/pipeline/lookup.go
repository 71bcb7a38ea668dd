package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	"github.com/hashicorp/go-multierror"
)

// Resolver finds the latest measurement for one beach by scanning each
// measurement feed backwards from its last page.
type Resolver struct {
	client *epa.Client
	feeds  []epa.Feed
	depth  int
	logger *slog.Logger
}

// NewResolver creates a Resolver that scans at most depth pages per feed.
func NewResolver(client *epa.Client, depth int, logger *slog.Logger) *Resolver {
	return &Resolver{
		client: client,
		feeds:  epa.MeasurementFeeds(),
		depth:  depth,
		logger: logger,
	}
}

// FeedScan describes how one feed was searched.
type FeedScan struct {
	Feed    string
	Page    int // page with matches, 0 if none
	Visited []int
	Matches int
}

// LookupResult is the outcome of a single-beach lookup.
type LookupResult struct {
	Measurement domain.Measurement
	Found       bool
	Scans       []FeedScan
	// FeedErrors holds one error per feed that could not be probed, or nil.
	FeedErrors error
}

// Resolve searches every feed for id and returns the newest match across
// them. Feeds that cannot be probed are skipped and reported in FeedErrors.
func (r *Resolver) Resolve(ctx context.Context, id domain.BeachID) (LookupResult, error) {
	table := domain.NewLatestTable()
	var result LookupResult
	var feedErrs *multierror.Error

	matchID := func(m domain.Measurement) bool { return m.BeachID == id }

	for _, feed := range r.feeds {
		scan, err := epa.ScanBackward(ctx, r.client, feed, r.depth, matchID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.logger.Error("feed unavailable", "feed", feed.Name, "error", err)
			feedErrs = multierror.Append(feedErrs, err)
			continue
		}

		result.Scans = append(result.Scans, FeedScan{
			Feed:    feed.Name,
			Page:    scan.Page,
			Visited: scan.Visited,
			Matches: len(scan.Matches),
		})
		from := 0
		if len(scan.Visited) > 0 {
			from = scan.Visited[0]
		}
		if scan.Page == 0 {
			r.logger.Info("no measurements found", "feed", feed.Name, "beach_id", id, "from_page", from, "pages", len(scan.Visited))
			continue
		}
		r.logger.Info("measurements found", "feed", feed.Name, "beach_id", id, "from_page", from, "page", scan.Page, "matches", len(scan.Matches))
		table.OfferAll(scan.Matches)
	}

	result.Measurement, result.Found = table.Get(id)
	result.FeedErrors = feedErrs.ErrorOrNil()
	return result, nil
}
