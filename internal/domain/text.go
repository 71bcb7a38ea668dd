package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Text is a loosely typed scalar from the feed. Strings keep their value,
// numbers and booleans their literal JSON text. Null and missing fields are
// not Valid and encode back to null.
type Text struct {
	Value string
	Valid bool
}

// NewText returns a valid Text holding s.
func NewText(s string) Text {
	return Text{Value: s, Valid: true}
}

// String returns the value, or "" when t is null.
func (t Text) String() string { return t.Value }

// UnmarshalJSON accepts any JSON value. Objects and arrays keep their compact text.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*t = Text{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode text: %w", err)
		}
		*t = NewText(s)
	case data[0] == '{' || data[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return fmt.Errorf("decode text: %w", err)
		}
		*t = NewText(buf.String())
	default:
		*t = NewText(string(data))
	}
	return nil
}

// MarshalJSON writes null for an invalid Text and a JSON string otherwise.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}
