package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// unknownCounty qualifies duplicate names whose location has no county.
const unknownCounty = "Unknown"

// DirectoryEntry pairs a display name with a beach ID.
type DirectoryEntry struct {
	Name string
	ID   BeachID
}

// Directory maps display names to beach IDs and remembers insertion order.
// Re-setting an existing name replaces its ID in place.
type Directory struct {
	entries []DirectoryEntry
	index   map[string]int
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{index: make(map[string]int)}
}

// Set maps name to id.
func (d *Directory) Set(name string, id BeachID) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[name]; ok {
		d.entries[i].ID = id
		return
	}
	d.index[name] = len(d.entries)
	d.entries = append(d.entries, DirectoryEntry{Name: name, ID: id})
}

// Lookup returns the ID registered under name.
func (d *Directory) Lookup(name string) (BeachID, bool) {
	i, ok := d.index[name]
	if !ok {
		return "", false
	}
	return d.entries[i].ID, true
}

// Entries returns the entries in insertion order.
func (d *Directory) Entries() []DirectoryEntry {
	out := make([]DirectoryEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of names.
func (d *Directory) Len() int { return len(d.entries) }

// MarshalJSON writes the directory as a JSON object in insertion order.
func (d *Directory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, fmt.Errorf("encode directory name: %w", err)
		}
		value, err := json.Marshal(string(e.ID))
		if err != nil {
			return nil, fmt.Errorf("encode directory id: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of name to ID, keeping the file's key order.
func (d *Directory) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode directory: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("decode directory: expected JSON object")
	}

	fresh := NewDirectory()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode directory: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode directory: unexpected key %v", tok)
		}
		var id BeachID
		if err := dec.Decode(&id); err != nil {
			return fmt.Errorf("decode directory entry %q: %w", name, err)
		}
		fresh.Set(name, id)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode directory: %w", err)
	}

	*d = *fresh
	return nil
}

// BuildDirectory turns a full Locations listing into a Directory. Every
// location whose name is shared with another is keyed "Name (County)"; unique
// names stay bare. The sorted list of shared names is returned alongside.
func BuildDirectory(locations []Location) (*Directory, []string) {
	counts := make(map[string]int, len(locations))
	for _, loc := range locations {
		counts[loc.Name]++
	}

	var duplicates []string
	for name, n := range counts {
		if n > 1 {
			duplicates = append(duplicates, name)
		}
	}
	sort.Strings(duplicates)

	dir := NewDirectory()
	for _, loc := range locations {
		name := loc.Name
		if counts[name] > 1 {
			county := loc.County
			if county == "" {
				county = unknownCounty
			}
			name = fmt.Sprintf("%s (%s)", name, county)
		}
		dir.Set(name, loc.ID)
	}
	return dir, duplicates
}
