// Command directory rebuilds the beach name directory from the EPA Locations
// feed and saves it for later refreshes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/adapter/filestore"
	"github.com/couchcryptid/bathing-water-etl/internal/config"
	"github.com/couchcryptid/bathing-water-etl/internal/observability"
	"github.com/couchcryptid/bathing-water-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const job = "bathing_water_directory"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger := observability.NewLogger(cfg).With("run_id", uuid.NewString(), "command", "directory")
	metrics := observability.NewMetrics()
	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		metrics.RunDuration.Set(time.Since(start).Seconds())
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := observability.Push(pushCtx, cfg.PushgatewayURL, job, prometheus.DefaultGatherer, logger); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}()

	client := epa.NewClient(cfg.EPABaseURL, cfg.PerPage, cfg.RequestTimeout, logger, metrics)
	result, err := pipeline.NewDirectoryBuilder(client, logger).Build(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Error("directory build interrupted", "error", err)
			return 1
		}
		logger.Error("locations feed unavailable", "error", err)
		fmt.Printf("No locations fetched; %s left unchanged.\n", cfg.DirectoryPath())
		return 0
	}
	if !result.Complete() {
		logger.Warn("locations feed only partly read", "failed_pages", result.Stats.Failed)
	}

	if err := filestore.WriteJSON(cfg.DirectoryPath(), result.Directory); err != nil {
		logger.Error("failed to save directory", "error", err)
		return 1
	}

	fmt.Printf("Found %d duplicate beach names:\n", len(result.Duplicates))
	for _, name := range result.Duplicates {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("Loaded %d beaches.\n", result.Directory.Len())
	fmt.Printf("Saved to %s\n", cfg.DirectoryPath())
	return 0
}
