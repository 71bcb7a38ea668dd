// Command validate checks the files written by the directory and refresh
// commands against each other: every aggregate record must belong to a
// directory entry with the same ID, share one refresh timestamp, and have a
// matching per-beach file.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
//	go run ./cmd/validate -data-dir data -skip-beaches
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/filestore"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type paths struct {
	directory string
	output    string
	beaches   string // empty skips per-beach checks
}

func main() {
	dataDir := flag.String("data-dir", ".", "directory holding the generated files")
	directoryFile := flag.String("directory", "beaches.json", "directory file name")
	outputFile := flag.String("output", "latest_beaches.json", "aggregate file name")
	beachesDir := flag.String("beaches", "beaches", "per-beach directory name")
	skipBeaches := flag.Bool("skip-beaches", false, "do not check per-beach files")
	flag.Parse()

	p := paths{
		directory: filepath.Join(*dataDir, *directoryFile),
		output:    filepath.Join(*dataDir, *outputFile),
		beaches:   filepath.Join(*dataDir, *beachesDir),
	}
	if *skipBeaches {
		p.beaches = ""
	}
	os.Exit(run(p, os.Stdout))
}

func run(p paths, out io.Writer) int {
	fmt.Fprintln(out, "=== Bathing Water Artifact Validation ===")
	fmt.Fprintln(out)

	dir, err := filestore.ReadDirectory(p.directory)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load directory: %v\n", err)
		return 1
	}

	var records []domain.OutputRecord
	if err := filestore.ReadJSON(p.output, &records); err != nil {
		fmt.Fprintf(out, "FATAL: load records: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateDirectory(dir),
		validateRecords(records, dir),
	}
	if p.beaches != "" {
		phases = append(phases, validateBeachFiles(records, p.beaches))
	}

	allPassed := true
	for _, ph := range phases {
		status := "\033[32mPASS\033[0m"
		if !ph.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(ph.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-30s %s\n", ph.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Beaches: %d in directory, %d with records\n", dir.Len(), len(records))

	for _, ph := range phases {
		if ph.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", ph.name)
		for i, e := range ph.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func validateDirectory(dir *domain.Directory) *phase {
	p := &phase{name: "Directory"}
	for _, e := range dir.Entries() {
		if e.Name == "" {
			p.errorf("entry with ID %q has an empty name", e.ID)
		}
		if e.ID == "" {
			p.errorf("%q has an empty ID", e.Name)
		}
	}
	return p
}

func validateRecords(records []domain.OutputRecord, dir *domain.Directory) *phase {
	p := &phase{name: "Aggregate records"}
	seen := make(map[string]bool, len(records))
	var updatedAt string

	for i, r := range records {
		if seen[r.Name] {
			p.errorf("record %d: %q appears more than once", i, r.Name)
		}
		seen[r.Name] = true

		id, ok := dir.Lookup(r.Name)
		switch {
		case !ok:
			p.errorf("record %d: %q is not in the directory", i, r.Name)
		case id != r.BeachID:
			p.errorf("record %d: %q has beach_id %q, directory has %q", i, r.Name, r.BeachID, id)
		}

		if _, err := time.Parse(domain.UpdatedAtLayout, r.UpdatedAt); err != nil {
			p.errorf("record %d: %q has invalid updated_at %q", i, r.Name, r.UpdatedAt)
		}
		if i == 0 {
			updatedAt = r.UpdatedAt
		} else if r.UpdatedAt != updatedAt {
			p.errorf("record %d: %q updated_at %q differs from %q", i, r.Name, r.UpdatedAt, updatedAt)
		}
	}
	return p
}

func validateBeachFiles(records []domain.OutputRecord, beachesDir string) *phase {
	p := &phase{name: "Per-beach files"}
	for _, r := range records {
		path := filepath.Join(beachesDir, domain.Slug(r.Name)+".json")
		var got domain.OutputRecord
		if err := filestore.ReadJSON(path, &got); err != nil {
			if errors.Is(err, filestore.ErrNotFound) {
				p.errorf("%q: missing %s", r.Name, path)
			} else {
				p.errorf("%q: %v", r.Name, err)
			}
			continue
		}
		if diff := cmp.Diff(r, got); diff != "" {
			p.errorf("%q: %s differs from aggregate record (-aggregate +file):\n%s", r.Name, path, diff)
		}
	}
	return p
}
