package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	"github.com/couchcryptid/bathing-water-etl/internal/observability"
	"github.com/hashicorp/go-multierror"
)

// Refresher downloads every page of every measurement feed and joins the
// latest measurement per beach against a saved directory.
type Refresher struct {
	client      *epa.Client
	feeds       []epa.Feed
	concurrency int
	loaders     []RecordLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewRefresher creates a Refresher fetching at most concurrency pages at a
// time; values below 1 mean one. Loaders receive the records of every refresh
// in order.
func NewRefresher(client *epa.Client, concurrency int, logger *slog.Logger, metrics *observability.Metrics, loaders ...RecordLoader) *Refresher {
	concurrency = max(concurrency, 1)
	return &Refresher{
		client:      client,
		feeds:       epa.MeasurementFeeds(),
		concurrency: concurrency,
		loaders:     loaders,
		logger:      logger,
		metrics:     metrics,
	}
}

// RefreshResult is the outcome of one bulk refresh.
type RefreshResult struct {
	Records []domain.OutputRecord
	Failed  []string // directory names without a measurement, in directory order
	Beaches int      // distinct beaches with a measurement across all feeds
	Stats   map[string]epa.FetchStats
	// FeedErrors holds one error per feed that could not be probed, or nil.
	FeedErrors error
}

// FetchLatest merges every measurement of every feed into one table. A feed
// whose first page fails is skipped; its error is included in the returned
// multierror while the table still holds the other feeds.
func (r *Refresher) FetchLatest(ctx context.Context) (*domain.LatestTable, map[string]epa.FetchStats, error) {
	table := domain.NewLatestTable()
	stats := make(map[string]epa.FetchStats, len(r.feeds))
	var feedErrs *multierror.Error

	for _, feed := range r.feeds {
		handle := func(_ int, batch []domain.Measurement) {
			r.metrics.MeasurementsMerged.Add(float64(len(batch)))
			r.metrics.MeasurementsReplaced.Add(float64(table.OfferAll(batch)))
		}

		s, err := epa.FetchAll(ctx, r.client, feed, r.concurrency, handle)
		if err != nil {
			if ctx.Err() != nil {
				return table, stats, ctx.Err()
			}
			r.logger.Error("feed unavailable", "feed", feed.Name, "error", err)
			feedErrs = multierror.Append(feedErrs, err)
			continue
		}
		stats[feed.Name] = s
		r.logger.Info("feed downloaded",
			"feed", feed.Name,
			"pages", s.LastPage,
			"records", s.Records,
			"failed_pages", s.Failed,
			"beaches_so_far", table.Len(),
		)
	}

	return table, stats, feedErrs.ErrorOrNil()
}

// Refresh fetches the latest measurements, joins them against dir and hands
// the records to every loader. Feed failures are reported in the result and
// do not fail the refresh; loader and context errors do.
func (r *Refresher) Refresh(ctx context.Context, dir *domain.Directory) (RefreshResult, error) {
	table, stats, feedErrs := r.FetchLatest(ctx)
	if ctx.Err() != nil {
		return RefreshResult{}, ctx.Err()
	}

	records, failed := domain.Join(dir, table)
	r.metrics.BeachesUpdated.Set(float64(len(records)))
	r.metrics.BeachesFailed.Set(float64(len(failed)))

	result := RefreshResult{
		Records:    records,
		Failed:     failed,
		Beaches:    table.Len(),
		Stats:      stats,
		FeedErrors: feedErrs,
	}

	for _, l := range r.loaders {
		if err := l.LoadRecords(ctx, records); err != nil {
			return result, fmt.Errorf("load records: %w", err)
		}
	}
	return result, nil
}
