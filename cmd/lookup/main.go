// Command lookup asks for a beach ID and saves the latest measurement found
// for it near the end of the EPA measurement feeds.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/adapter/filestore"
	"github.com/couchcryptid/bathing-water-etl/internal/config"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	"github.com/couchcryptid/bathing-water-etl/internal/observability"
	"github.com/couchcryptid/bathing-water-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const job = "bathing_water_lookup"

func main() {
	os.Exit(run(os.Stdin, os.Stdout))
}

func run(in io.Reader, out io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	id := prompt(in, out, "Enter beach ID: ")
	if id == "" {
		fmt.Fprintln(out, "No beach ID entered.")
		return 1
	}

	logger := observability.NewLogger(cfg).With("run_id", uuid.NewString(), "command", "lookup")
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
	result, err := pipeline.NewResolver(client, cfg.ScanDepth, logger).Resolve(ctx, domain.BeachID(id))
	if err != nil {
		logger.Error("lookup failed", "error", err)
		return 1
	}
	if result.FeedErrors != nil {
		logger.Warn("some feeds were not searched", "error", result.FeedErrors)
	}
	if !result.Found {
		fmt.Fprintf(out, "No recent measurements found for beach %s.\n", id)
		return 0
	}

	m := result.Measurement
	printMeasurement(out, m)

	raw, err := m.Record()
	if err != nil {
		logger.Error("invalid measurement record", "error", err)
		return 1
	}
	path := resultPath(cfg.DataDir, m)
	if err := filestore.WriteJSON(path, raw); err != nil {
		logger.Error("failed to save measurement", "error", err)
		return 1
	}
	fmt.Fprintf(out, "Saved to %s\n", path)
	return 0
}

// resultPath places the lookup file for m directly inside dataDir.
func resultPath(dataDir string, m domain.Measurement) string {
	return filepath.Join(dataDir, domain.LookupFileName(m.BeachName.String()))
}

func prompt(in io.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	s := bufio.NewScanner(in)
	if !s.Scan() {
		return ""
	}
	return strings.TrimSpace(s.Text())
}

func printMeasurement(out io.Writer, m domain.Measurement) {
	fmt.Fprintf(out, "Latest measurement for %s (%s):\n", orNA(m.BeachName.String()), m.BeachID)
	fmt.Fprintf(out, "  Date:                   %s\n", orNA(m.ResultDate.String()))
	fmt.Fprintf(out, "  E. coli:                %s\n", indicator(m.EColi))
	fmt.Fprintf(out, "  Intestinal enterococci: %s\n", indicator(m.Enterococci))
	fmt.Fprintf(out, "  Status:                 %s\n", orNA(m.Status.String()))
	fmt.Fprintf(out, "  County:                 %s\n", orNA(m.County.String()))
	fmt.Fprintf(out, "  Local authority:        %s\n", orNA(m.LocalAuthority.String()))
}

// indicator renders a verbatim indicator value; strings lose their quotes.
func indicator(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "n/a"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return orNA(s)
	}
	return string(raw)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
