// Package pipeline orchestrates the three EPA workflows: building the beach
// directory, resolving a single beach, and refreshing every beach.
package pipeline

import (
	"context"

	"github.com/couchcryptid/bathing-water-etl/internal/domain"
)

// RecordLoader persists or publishes the records of a refresh.
type RecordLoader interface {
	LoadRecords(ctx context.Context, records []domain.OutputRecord) error
}
