package domain

import (
	"bytes"
	"sync"
)

// Newer reports whether candidate should replace current as the latest sample
// for a beach. Dates compare as strings; an empty or null date loses to any
// real one. Equal dates, including two undated records, fall back to
// comparing the serialized records so the outcome never depends on arrival
// order: the byte-wise greater record wins.
func Newer(candidate, current Measurement) bool {
	cd, kd := candidate.ResultDate.String(), current.ResultDate.String()
	if cd != kd {
		return cd > kd
	}
	return bytes.Compare(tieKey(candidate), tieKey(current)) > 0
}

func tieKey(m Measurement) []byte {
	data, err := m.Record()
	if err != nil {
		return nil
	}
	return data
}

// LatestTable keeps the newest Measurement seen per beach. It is safe for
// concurrent use; each Offer is an atomic compare-and-replace.
type LatestTable struct {
	mu      sync.Mutex
	entries map[BeachID]Measurement
}

// NewLatestTable returns an empty table.
func NewLatestTable() *LatestTable {
	return &LatestTable{entries: make(map[BeachID]Measurement)}
}

// Offer stores m if no entry exists for its beach or m is newer than the
// stored one. Records without a beach ID are ignored. It reports whether m
// was stored.
func (t *LatestTable) Offer(m Measurement) bool {
	if m.BeachID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.entries[m.BeachID]
	if ok && !Newer(m, current) {
		return false
	}
	t.entries[m.BeachID] = m
	return true
}

// OfferAll offers every measurement in batch and returns how many were stored.
func (t *LatestTable) OfferAll(batch []Measurement) int {
	stored := 0
	for _, m := range batch {
		if t.Offer(m) {
			stored++
		}
	}
	return stored
}

// Get returns the latest measurement for id.
func (t *LatestTable) Get(id BeachID) (Measurement, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.entries[id]
	return m, ok
}

// Len returns the number of beaches with a measurement.
func (t *LatestTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns a copy of the table contents.
func (t *LatestTable) Snapshot() map[BeachID]Measurement {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[BeachID]Measurement, len(t.entries))
	for id, m := range t.entries {
		out[id] = m
	}
	return out
}
