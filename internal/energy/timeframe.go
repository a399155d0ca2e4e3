package energy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Timeframe is the caller-selected reporting window.
type Timeframe string

const (
	Today Timeframe = "today"
	Month Timeframe = "month"
	Year  Timeframe = "year"
)

// DefaultTimeframe is used when the caller does not pick one.
const DefaultTimeframe = Month

var ErrInvalidTimeframe = errors.New("invalid timeframe")

// ParseTimeframe accepts today, month or year. An empty value selects
// DefaultTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case "":
		return DefaultTimeframe, nil
	case Today, Month, Year:
		return tf, nil
	default:
		return "", fmt.Errorf("%w %q: must be one of today, month, year", ErrInvalidTimeframe, s)
	}
}

// Window is an inclusive [Start, End] time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Window returns the range from the start of the current day, month or year
// (in now's location) up to and including now.
func (tf Timeframe) Window(now time.Time) Window {
	y, m, d := now.Date()
	loc := now.Location()
	var start time.Time
	switch tf {
	case Today:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	case Year:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
	}
	return Window{Start: start, End: now}
}
