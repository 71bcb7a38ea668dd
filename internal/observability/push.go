package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push replaces the metrics of job on a Prometheus Pushgateway with everything
// in gatherer. An empty url disables pushing.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(gatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	logger.Debug("metrics pushed", "url", url, "job", job)
	return nil
}
