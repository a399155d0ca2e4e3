package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"energyinsight/internal/energy"
)

// ErrInvalidTimestamp is returned when a timestamp matches none of the
// accepted layouts.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Layouts without an offset are read in the configured location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Record is the wire form of a reading, shared by the HTTP and Kafka paths.
type Record struct {
	UserID      uint    `json:"user_id,omitempty"`
	Timestamp   string  `json:"timestamp"`
	EnergyType  string  `json:"energy_type"`
	Consumption float64 `json:"consumption"`
	Generation  float64 `json:"generation"`
}

// ParseTimestamp accepts RFC 3339 and the naive layouts above.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// Reading converts the record for owner. A zero owner falls back to the
// record's own user_id.
func (r Record) Reading(owner uint, loc *time.Location) (energy.Reading, error) {
	ts, err := ParseTimestamp(r.Timestamp, loc)
	if err != nil {
		return energy.Reading{}, fmt.Errorf("%w: %v", energy.ErrInvalidReading, err)
	}
	if owner == 0 {
		owner = r.UserID
	}
	reading := energy.Reading{
		Timestamp:   ts,
		Category:    energy.NormalizeCategory(r.EnergyType),
		Consumption: r.Consumption,
		Generation:  r.Generation,
		OwnerID:     owner,
	}
	if err := reading.Validate(); err != nil {
		return energy.Reading{}, err
	}
	return reading, nil
}
