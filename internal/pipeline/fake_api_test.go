package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/bathing-water-etl/internal/adapter/epa"
	"github.com/couchcryptid/bathing-water-etl/internal/observability"
)

const testPerPage = 2

// fakeAPI serves fixed collections keyed by feed path, sliced into pages.
type fakeAPI struct {
	feeds map[string][]map[string]any
	down  map[string]bool // feed paths answering 503
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if a.down[path] {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	records, ok := a.feeds[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count": len(records),
		"list":  append([]map[string]any{}, records[start:end]...),
	})
}

func newTestClient(t *testing.T, api *fakeAPI) *epa.Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return epa.NewClient(srv.URL, testPerPage, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func location(id, name, county string) map[string]any {
	return map[string]any{"beach_id": id, "beach_name": name, "county_name": county}
}

func measurement(id, name, date, status string) map[string]any {
	return map[string]any{
		"beach_id":                      id,
		"beach_name":                    name,
		"result_date":                   date,
		"sample_water_quality_status":   status,
		"e_coli_result":                 10,
		"intestinal_enterococci_result": 5,
		"county_name":                   "Dublin",
		"local_authority_name":          "Dublin City Council",
	}
}
