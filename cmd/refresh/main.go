// Command refresh downloads every EPA measurement page, keeps the newest
// measurement per beach and writes one record per directory entry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/adapter/filestore"
	kafkaadapter "github.com/couchcryptid/bathing-water-etl/internal/adapter/kafka"
	"github.com/couchcryptid/bathing-water-etl/internal/config"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	"github.com/couchcryptid/bathing-water-etl/internal/observability"
	"github.com/couchcryptid/bathing-water-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const job = "bathing_water_refresh"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger := observability.NewLogger(cfg).With("run_id", uuid.NewString(), "command", "refresh")
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

	dir, err := filestore.ReadDirectory(cfg.DirectoryPath())
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			logger.Error("beach directory missing, run the directory command first", "path", cfg.DirectoryPath())
		} else {
			logger.Error("failed to load beach directory", "error", err)
		}
		return 1
	}
	logger.Info("directory loaded", "path", cfg.DirectoryPath(), "entries", dir.Len())

	beachesPath := ""
	if cfg.WriteBeachFiles {
		beachesPath = cfg.BeachesPath()
	}
	loaders := []pipeline.RecordLoader{filestore.NewRecordWriter(cfg.OutputPath(), beachesPath, logger)}
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer closeWriter(writer, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	client := epa.NewClient(cfg.EPABaseURL, cfg.PerPage, cfg.RequestTimeout, logger, metrics)
	refresher := pipeline.NewRefresher(client, cfg.FetchConcurrency, logger, metrics, loaders...)

	result, err := refresher.Refresh(ctx, dir)
	if err != nil {
		logger.Error("refresh failed", "error", err)
		return 1
	}
	if result.FeedErrors != nil {
		logger.Warn("some feeds were skipped", "error", result.FeedErrors)
	}

	printSummary(os.Stdout, dir, result)
	fmt.Printf("Saved to %s\n", cfg.OutputPath())
	if beachesPath != "" {
		fmt.Printf("Per-beach files in %s\n", beachesPath)
	}
	return 0
}

func closeWriter(w *kafkaadapter.Writer, logger *slog.Logger) {
	if err := w.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}

// printSummary writes one line per directory entry, the totals and the names
// left without data.
func printSummary(out io.Writer, dir *domain.Directory, result pipeline.RefreshResult) {
	byName := make(map[string]domain.OutputRecord, len(result.Records))
	for _, r := range result.Records {
		byName[r.Name] = r
	}

	for _, entry := range dir.Entries() {
		if r, ok := byName[entry.Name]; ok {
			fmt.Fprintf(out, "✓ %s: %s (%s)\n", entry.Name, orNA(r.Status.String()), orNA(r.ResultDate.String()))
			continue
		}
		fmt.Fprintf(out, "✗ %s: no data\n", entry.Name)
	}

	fmt.Fprintf(out, "\n%d/%d beaches updated\n", len(result.Records), dir.Len())
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "No data for %d beaches:\n", len(result.Failed))
		for _, name := range result.Failed {
			fmt.Fprintf(out, "  - %s\n", name)
		}
	}
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
