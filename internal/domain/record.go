package domain

import (
	"encoding/json"
	"strings"
)

// UpdatedAtLayout is the UTC timestamp layout of OutputRecord.UpdatedAt.
const UpdatedAtLayout = "2006-01-02T15:04:05Z"

// OutputRecord is the published view of one directory entry joined with its
// latest measurement.
type OutputRecord struct {
	BeachID               BeachID         `json:"beach_id"`
	Name                  string          `json:"name"`
	Status                Text            `json:"status"`
	ResultDate            Text            `json:"result_date"`
	EColi                 json.RawMessage `json:"e_coli"`
	IntestinalEnterococci json.RawMessage `json:"intestinal_enterococci"`
	County                Text            `json:"county"`
	LocalAuthority        Text            `json:"local_authority"`
	UpdatedAt             string          `json:"updated_at"`
}

// NewOutputRecord builds the record for a directory entry from its measurement.
func NewOutputRecord(entry DirectoryEntry, m Measurement, updatedAt string) OutputRecord {
	return OutputRecord{
		BeachID:               entry.ID,
		Name:                  entry.Name,
		Status:                m.Status,
		ResultDate:            m.ResultDate,
		EColi:                 m.EColi,
		IntestinalEnterococci: m.Enterococci,
		County:                m.County,
		LocalAuthority:        m.LocalAuthority,
		UpdatedAt:             updatedAt,
	}
}

// Join produces one OutputRecord per directory entry that has a measurement
// in table, in directory order. Names without a measurement are returned as
// failed. All records of one join share the same UpdatedAt.
func Join(dir *Directory, table *LatestTable) ([]OutputRecord, []string) {
	updatedAt := Timestamp()

	records := make([]OutputRecord, 0, dir.Len())
	var failed []string
	for _, entry := range dir.Entries() {
		m, ok := table.Get(entry.ID)
		if !ok {
			failed = append(failed, entry.Name)
			continue
		}
		records = append(records, NewOutputRecord(entry, m, updatedAt))
	}
	return records, failed
}

var (
	slugReplacer   = strings.NewReplacer(" ", "_", "/", "_", ",", "", "'", "")
	lookupReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
)

// Slug converts a display name into a lowercase file name stem,
// e.g. "Bettystown (Meath)" -> "bettystown_(meath)".
func Slug(name string) string {
	return slugReplacer.Replace(strings.ToLower(name))
}

// LookupFileName names the single-lookup result file after the beach name.
// Path separators are replaced so the name never leaves its directory.
func LookupFileName(beachName string) string {
	if beachName == "" {
		beachName = "Unknown"
	}
	return lookupReplacer.Replace(beachName) + "_latest.json"
}
