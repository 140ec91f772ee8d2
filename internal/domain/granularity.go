package domain

import (
	"fmt"
	"time"
)

// Granularity is the time resolution of metered data, named by its ISO-8601 duration.
type Granularity string

const (
	GranularityPT5M  Granularity = "PT5M"
	GranularityPT10M Granularity = "PT10M"
	GranularityPT15M Granularity = "PT15M"
	GranularityPT30M Granularity = "PT30M"
	GranularityPT1H  Granularity = "PT1H"
	GranularityP1D   Granularity = "P1D"
	GranularityP1M   Granularity = "P1M"
	GranularityP1Y   Granularity = "P1Y"
)

// Granularities lists every granularity from finest to coarsest.
var Granularities = []Granularity{
	GranularityPT5M,
	GranularityPT10M,
	GranularityPT15M,
	GranularityPT30M,
	GranularityPT1H,
	GranularityP1D,
	GranularityP1M,
	GranularityP1Y,
}

func (g Granularity) rank() int {
	for i, known := range Granularities {
		if g == known {
			return i
		}
	}
	return -1
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool { return g.rank() >= 0 }

// Compare returns -1 if g is finer than o, 1 if coarser, 0 if equal.
func (g Granularity) Compare(o Granularity) int {
	a, b := g.rank(), o.rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Between reports whether g lies within [min, max] inclusive.
func (g Granularity) Between(min, max Granularity) bool {
	return g.Compare(min) >= 0 && g.Compare(max) <= 0
}

// Duration returns the nominal length of one interval. Calendar
// granularities use 30 and 365 days.
func (g Granularity) Duration() time.Duration {
	switch g {
	case GranularityPT5M:
		return 5 * time.Minute
	case GranularityPT10M:
		return 10 * time.Minute
	case GranularityPT15M:
		return 15 * time.Minute
	case GranularityPT30M:
		return 30 * time.Minute
	case GranularityPT1H:
		return time.Hour
	case GranularityP1D:
		return 24 * time.Hour
	case GranularityP1M:
		return 30 * 24 * time.Hour
	case GranularityP1Y:
		return 365 * 24 * time.Hour
	}
	return 0
}

// ParseGranularity converts an ISO-8601 name into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if !g.Valid() {
		return "", fmt.Errorf("unknown granularity: %q", s)
	}
	return g, nil
}

// Timeframe is an inclusive window of calendar days.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls on or between the timeframe's days.
func (tf Timeframe) Contains(t time.Time) bool {
	return !t.Before(tf.Start) && !t.After(tf.End)
}
