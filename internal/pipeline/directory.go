package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
)

// DirectoryBuilder rebuilds the name to ID directory from the Locations feed.
type DirectoryBuilder struct {
	client *epa.Client
	logger *slog.Logger
}

// NewDirectoryBuilder creates a DirectoryBuilder.
func NewDirectoryBuilder(client *epa.Client, logger *slog.Logger) *DirectoryBuilder {
	return &DirectoryBuilder{client: client, logger: logger}
}

// DirectoryResult is the outcome of one directory build.
type DirectoryResult struct {
	Directory  *domain.Directory
	Duplicates []string // names shared by several locations, sorted
	Locations  int      // locations fetched
	Stats      epa.FetchStats
}

// Complete reports whether every page of the Locations feed was read.
func (r DirectoryResult) Complete() bool {
	return r.Stats.Failed == 0
}

// Build fetches every location sequentially and derives the directory.
func (b *DirectoryBuilder) Build(ctx context.Context) (DirectoryResult, error) {
	locations, stats, err := epa.Collect[domain.Location](ctx, b.client, epa.Locations)
	if err != nil {
		return DirectoryResult{}, fmt.Errorf("fetch locations: %w", err)
	}

	dir, duplicates := domain.BuildDirectory(locations)
	b.logger.Info("directory built",
		"locations", len(locations),
		"entries", dir.Len(),
		"duplicates", len(duplicates),
		"pages", stats.Pages,
		"failed_pages", stats.Failed,
	)

	return DirectoryResult{
		Directory:  dir,
		Duplicates: duplicates,
		Locations:  len(locations),
		Stats:      stats,
	}, nil
}
