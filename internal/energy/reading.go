// Package energy holds the telemetry model and the per-request aggregation
// that turns raw readings into minute buckets and a period summary.
package energy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Category is the generation source a reading was attributed to.
type Category string

const (
	Solar Category = "solar"
	Wind  Category = "wind"
	Hydro Category = "hydro"
)

// Categories lists the sources that have a named generation slot.
var Categories = []Category{Solar, Wind, Hydro}

// ErrInvalidReading marks readings rejected at ingest.
var ErrInvalidReading = errors.New("invalid reading")

// Reading is a single consumption/generation sample owned by one user.
type Reading struct {
	Timestamp   time.Time
	Category    Category
	Consumption float64
	Generation  float64
	OwnerID     uint
}

// NormalizeCategory lower-cases and trims a free-form energy type.
func NormalizeCategory(s string) Category {
	return Category(strings.ToLower(strings.TrimSpace(s)))
}

// Validate reports whether r may be persisted.
func (r Reading) Validate() error {
	switch {
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidReading)
	case r.Category == "":
		return fmt.Errorf("%w: missing energy_type", ErrInvalidReading)
	case r.OwnerID == 0:
		return fmt.Errorf("%w: missing owner", ErrInvalidReading)
	case !finite(r.Consumption) || r.Consumption < 0:
		return fmt.Errorf("%w: consumption must be a non-negative number", ErrInvalidReading)
	case !finite(r.Generation) || r.Generation < 0:
		return fmt.Errorf("%w: generation must be a non-negative number", ErrInvalidReading)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
