package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	EPABaseURL     string
	PerPage        int
	RequestTimeout time.Duration

	// FetchConcurrency caps in-flight page requests during a bulk refresh.
	FetchConcurrency int
	// ScanDepth bounds how many pages a single lookup walks back per feed.
	ScanDepth int

	DataDir         string
	DirectoryFile   string
	OutputFile      string
	BeachesDir      string
	WriteBeachFiles bool

	LogLevel  string
	LogFormat string

	KafkaBrokers []string
	KafkaTopic   string

	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honoured if present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	perPage, err := parseInt("EPA_PER_PAGE", 100, 1, 1000)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("FETCH_CONCURRENCY", 10, 1, 100)
	if err != nil {
		return nil, err
	}
	depth, err := parseInt("SCAN_DEPTH", 10, 1, 10000)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("EPA_REQUEST_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	writeBeachFiles, err := parseBool("WRITE_BEACH_FILES", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EPABaseURL:       strings.TrimRight(sharedcfg.EnvOrDefault("EPA_BASE_URL", "https://data.epa.ie/bw/api/v1"), "/"),
		PerPage:          perPage,
		RequestTimeout:   timeout,
		FetchConcurrency: concurrency,
		ScanDepth:        depth,
		DataDir:          sharedcfg.EnvOrDefault("DATA_DIR", "."),
		DirectoryFile:    sharedcfg.EnvOrDefault("DIRECTORY_FILE", "beaches.json"),
		OutputFile:       sharedcfg.EnvOrDefault("OUTPUT_FILE", "latest_beaches.json"),
		BeachesDir:       sharedcfg.EnvOrDefault("BEACHES_DIR", "beaches"),
		WriteBeachFiles:  writeBeachFiles,
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "bathing-water-latest"),
		PushgatewayURL:   strings.TrimSpace(os.Getenv("PUSHGATEWAY_URL")),
	}
	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.EPABaseURL == "" {
		return nil, fmt.Errorf("EPA_BASE_URL is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether refreshed records are also published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// DirectoryPath is the location of the name to ID directory file.
func (c *Config) DirectoryPath() string { return filepath.Join(c.DataDir, c.DirectoryFile) }

// OutputPath is the location of the aggregate refresh file.
func (c *Config) OutputPath() string { return filepath.Join(c.DataDir, c.OutputFile) }

// BeachesPath is the directory holding one file per refreshed beach.
func (c *Config) BeachesPath() string { return filepath.Join(c.DataDir, c.BeachesDir) }

func parseInt(key string, def, minimum, maximum int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum || n > maximum {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, minimum, maximum)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
