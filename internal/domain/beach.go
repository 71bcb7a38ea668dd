package domain

import (
	"encoding/json"
	"fmt"
)

// BeachID is the EPA beach identifier in its textual form.
type BeachID string

// UnmarshalJSON accepts the identifier as a JSON string or number.
func (id *BeachID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode beach_id: %w", err)
		}
		*id = BeachID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode beach_id: %w", err)
	}
	*id = BeachID(n.String())
	return nil
}

// Location is one monitored bathing site from the Locations feed.
type Location struct {
	ID     BeachID `json:"beach_id"`
	Name   string  `json:"beach_name"`
	County string  `json:"county_name"`
}

// UnmarshalJSON tolerates non-string names and counties.
func (l *Location) UnmarshalJSON(data []byte) error {
	var w struct {
		ID     BeachID `json:"beach_id"`
		Name   Text    `json:"beach_name"`
		County Text    `json:"county_name"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	*l = Location{ID: w.ID, Name: w.Name.String(), County: w.County.String()}
	return nil
}

// Measurement is one water quality sample from either measurement feed.
type Measurement struct {
	BeachID        BeachID         `json:"beach_id"`
	BeachName      Text            `json:"beach_name"`
	ResultDate     Text            `json:"result_date"`
	Status         Text            `json:"sample_water_quality_status"`
	EColi          json.RawMessage `json:"e_coli_result"`
	Enterococci    json.RawMessage `json:"intestinal_enterococci_result"`
	County         Text            `json:"county_name"`
	LocalAuthority Text            `json:"local_authority_name"`

	// Raw is the record exactly as the feed sent it, unknown fields included.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps a copy of the full record in Raw.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	type plain Measurement
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode measurement: %w", err)
	}
	*m = Measurement(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Record returns the full feed record, falling back to the known fields when
// the measurement was not decoded from the feed.
func (m Measurement) Record() (json.RawMessage, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	type plain Measurement
	data, err := json.Marshal(plain(m))
	if err != nil {
		return nil, fmt.Errorf("encode measurement: %w", err)
	}
	return data, nil
}
