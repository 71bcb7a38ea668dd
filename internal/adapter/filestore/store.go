// Package filestore persists run artifacts as indented JSON files.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/bathing-water-etl/internal/domain"
)

// ErrNotFound is wrapped when a required input file does not exist.
var ErrNotFound = errors.New("file not found")

// WriteJSON encodes v as 2-space indented JSON and atomically replaces path
// with it. Parent directories are created as needed.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op once renamed

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ReadDirectory loads a directory file written by WriteJSON, keeping its key order.
func ReadDirectory(path string) (*domain.Directory, error) {
	dir := domain.NewDirectory()
	if err := ReadJSON(path, dir); err != nil {
		return nil, err
	}
	return dir, nil
}

// RecordWriter writes refreshed records to disk: one aggregate array file
// and, optionally, one file per beach named by its slug.
// It implements pipeline.RecordLoader.
type RecordWriter struct {
	outputPath  string
	beachesPath string
	perBeach    bool
	logger      *slog.Logger
}

// NewRecordWriter creates a writer for the aggregate file at outputPath and
// per-beach files under beachesPath. An empty beachesPath disables per-beach files.
func NewRecordWriter(outputPath, beachesPath string, logger *slog.Logger) *RecordWriter {
	return &RecordWriter{
		outputPath:  outputPath,
		beachesPath: beachesPath,
		perBeach:    beachesPath != "",
		logger:      logger,
	}
}

// LoadRecords writes every per-beach file, then the aggregate file.
func (w *RecordWriter) LoadRecords(ctx context.Context, records []domain.OutputRecord) error {
	if w.perBeach {
		if err := os.MkdirAll(w.beachesPath, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", w.beachesPath, err)
		}
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := WriteJSON(w.BeachFile(r.Name), r); err != nil {
				return err
			}
		}
		w.logger.Debug("per-beach files written", "dir", w.beachesPath, "count", len(records))
	}

	if records == nil {
		records = []domain.OutputRecord{}
	}
	if err := WriteJSON(w.outputPath, records); err != nil {
		return err
	}
	w.logger.Info("aggregate file written", "path", w.outputPath, "records", len(records))
	return nil
}

// BeachFile returns the per-beach file path for a display name.
func (w *RecordWriter) BeachFile(name string) string {
	return filepath.Join(w.beachesPath, domain.Slug(name)+".json")
}

// OutputPath returns the aggregate file path.
func (w *RecordWriter) OutputPath() string { return w.outputPath }
