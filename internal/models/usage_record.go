package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UsageRecord represents a single boarding event captured by the boarding subsystem.
// Records are read-only inside the insights pipeline.
type UsageRecord struct {
	ID      string `json:"id" db:"id"`
	RouteID string `json:"routeId" db:"route_id"`

	// Raw timestamp as captured (RFC3339, "2006-01-02 15:04:05", unix seconds or millis).
	// Malformed values are tolerated by the aggregator.
	Timestamp string `json:"timestamp" db:"boarded_at"`

	// Optional fields
	PassengerID string   `json:"passengerId,omitempty" db:"passenger_id"`
	ShuttleID   string   `json:"shuttleId,omitempty" db:"shuttle_id"`
	LocationID  string   `json:"locationId,omitempty" db:"location_id"`
	Latitude    *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64 `json:"longitude,omitempty" db:"longitude"`
}

// HasCoordinates reports whether the record carries a boarding position
func (r UsageRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// UnmarshalJSON accepts the timestamp as a string or a bare unix number
func (r *UsageRecord) UnmarshalJSON(b []byte) error {
	type plain UsageRecord
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.Timestamp)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		r.Timestamp = ""
	case raw[0] == '"':
		return json.Unmarshal(raw, &r.Timestamp)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", raw, err)
		}
		r.Timestamp = n.String()
	}
	return nil
}
